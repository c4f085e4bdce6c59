// Package client is the Go SDK for the school-division helpdesk API.
//
// It covers both sides of the service: the public submission portal and the
// authenticated staff endpoints.
//
// # Submitting a ticket
//
// Every submission needs a captcha challenge, and each challenge is
// single-use:
//
//	c := client.MustNew("https://helpdesk.westcreeksd.ca")
//
//	captcha, err := c.GenerateCaptcha(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := c.SubmitTicket(ctx, client.SubmitTicketRequest{
//	    Category:       "troubleshooting",
//	    RequesterName:  "Janet Kowalski",
//	    RequesterEmail: "j.kowalski@westcreeksd.ca",
//	    School:         "Westcreek Elementary",
//	    Subject:        "Projector shows no signal",
//	    Description:    "Room 204 projector stopped detecting the laptop.",
//	    CaptchaID:      captcha.ID,
//	    CaptchaCode:    captcha.Code,
//	})
//
// Submissions are budgeted per (email, IP). When the budget is exhausted the
// server answers 429 and SubmitTicket returns a *ThrottledError carrying the
// cooldown in minutes:
//
//	var throttled *client.ThrottledError
//	if errors.As(err, &throttled) {
//	    fmt.Printf("try again in %d minute(s)\n", throttled.RetryAfterMinutes)
//	}
//
// # Tracking a ticket
//
// Tracking needs the tracking id from the submission plus the requester's
// email. Add WithCacheTTL to avoid hammering the server from polling UIs:
//
//	c := client.MustNew(baseURL, client.WithCacheTTL(30*time.Second))
//	status, err := c.Track(ctx, result.TrackingID, "j.kowalski@westcreeksd.ca")
//
// # Staff usage
//
// Staff calls require a session token, obtained with Login or attached
// directly with WithBearerToken:
//
//	token, err := c.Login(ctx, "admin@westcreeksd.ca", password)
//	tickets, err := c.ListTickets(ctx, client.ListOptions{Status: "open"})
//	_, err = c.UpdateStatus(ctx, tickets[0].ID, "in_progress", "looking into it")
package client
