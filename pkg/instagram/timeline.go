package instagram

import "context"

// PageFetcher fetches one timeline page after a cursor.
type PageFetcher interface {
	FetchTimeline(ctx context.Context, userID, after string) (*TimelinePage, error)
}

// Timeline walks a profile's posts page by page. A failed Next leaves the
// iterator where it was, so the same page can be requested again.
type Timeline struct {
	fetcher PageFetcher
	profile *Profile
	next    string
	cursor  string
	started bool
	done    bool
}

// NewTimeline starts a walk at the given cursor. An empty cursor starts at
// the newest post, reusing the page embedded in the profile if there is one.
func NewTimeline(fetcher PageFetcher, profile *Profile, after string) *Timeline {
	return &Timeline{fetcher: fetcher, profile: profile, next: after}
}

// Done reports whether the last page has been returned.
func (t *Timeline) Done() bool { return t.done }

// Cursor is the cursor the most recently returned page was fetched with.
// Passing it to NewTimeline restarts at that page.
func (t *Timeline) Cursor() string { return t.cursor }

// Next returns the next page, or nil once the timeline is exhausted.
func (t *Timeline) Next(ctx context.Context) (*TimelinePage, error) {
	if t.done {
		return nil, nil
	}

	var page *TimelinePage
	if !t.started && t.next == "" && t.profile.FirstPage != nil {
		page = t.profile.FirstPage
	} else {
		var err error
		page, err = t.fetcher.FetchTimeline(ctx, t.profile.ID, t.next)
		if err != nil {
			return nil, err
		}
	}

	t.started = true
	t.cursor = t.next
	end := page.PageInfo.EndCursor
	// a page that does not move the cursor forward would loop forever
	if !page.PageInfo.HasNextPage || end == "" || end == t.next {
		t.done = true
	}
	t.next = end
	return page, nil
}
