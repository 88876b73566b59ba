package output

import (
	"fmt"

	"github.com/ecervera/temario/internal/catalog"
	"github.com/ecervera/temario/internal/relay"
	"github.com/ecervera/temario/internal/store"
)

// TopicPage renders one page of a letter listing.
func (w *Writer) TopicPage(heading string, page catalog.Page) {
	_, _ = fmt.Fprintln(w.out, w.styles.Letter.Render(heading))

	if len(page.Items) == 0 {
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("  (no topics)"))
		return
	}

	for i, topic := range page.Items {
		line := fmt.Sprintf("%3d. %s", i+1, w.styles.Topic.Render(topic.DisplayName))
		if n := len(topic.Entries); n > 0 {
			line += " " + w.styles.Count.Render(fmt.Sprintf("(%d)", n))
		}
		_, _ = fmt.Fprintln(w.out, line)
	}

	if page.TotalPages > 1 {
		footer := fmt.Sprintf("Page %d/%d", page.Page, page.TotalPages)
		_, _ = fmt.Fprintln(w.out, w.styles.Footer.Render(footer))
	}
}

// TopicList renders a flat topic list, most recent first.
func (w *Writer) TopicList(heading string, topics []*store.Topic) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(heading))

	if len(topics) == 0 {
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("  (no topics)"))
		return
	}

	for _, topic := range topics {
		date := w.styles.Dim.Render(topic.CreatedAt.Format("2006-01-02"))
		_, _ = fmt.Fprintf(w.out, "  %s  %s\n", date, w.styles.Topic.Render(topic.DisplayName))
	}
}

// TitleHits renders media-catalog title matches for a query.
func (w *Writer) TitleHits(query string, hits []catalog.TitleHit) {
	heading := fmt.Sprintf("Titles matching %q", query)
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(heading))

	if len(hits) == 0 {
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("  (no matches)"))
		return
	}

	for _, hit := range hits {
		id := w.styles.Dim.Render(fmt.Sprintf("#%d", hit.MessageID))
		_, _ = fmt.Fprintf(w.out, "  %s  %s\n", id, w.styles.Topic.Render(hit.Title))
	}
}

// RelayProgress renders one progress-bar frame for a running relay job.
func (w *Writer) RelayProgress(snap relay.Snapshot) {
	done := snap.Delivered + snap.Skipped
	msg := fmt.Sprintf("item %d/%d (%s)", snap.CurrentIndex+1, snap.Total, snap.ItemState)
	w.Progress(done, snap.Total, msg)
}

// RelaySummary renders the terminal summary of a relay job.
func (w *Writer) RelaySummary(status relay.JobStatus, s relay.Summary) {
	msg := fmt.Sprintf("Relay %s: %d/%d delivered, %d skipped", status, s.Delivered, s.Total, s.Skipped)
	switch {
	case status == relay.StatusCancelled:
		w.Warning(msg)
	case s.Skipped > 0:
		w.Warning(msg)
	default:
		w.Success(msg)
	}
}
