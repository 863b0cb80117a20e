// Package instagram is the authenticated client for Instagram's web
// endpoints.
//
// The client never retries on its own. Before each request it asks its
// Pacer to wait, and every refusal from Instagram is returned as an
// *errors.Error whose type tells the caller whether to retry, skip or stop:
// checkpoint and challenge responses become checkpoint errors, login
// redirects become auth errors.
//
//	c, _ := instagram.NewClient(instagram.Options{Pacer: policy})
//	_ = c.UseSession(sess)
//	profile, err := c.FetchProfile(ctx, "natgeo")
//	tl := instagram.NewTimeline(c, profile, "")
//	for !tl.Done() {
//	    page, err := tl.Next(ctx)
//	    ...
//	}
package instagram
