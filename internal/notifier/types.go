package notifier

// Event types emitted by the watcher.
const (
	EventGrabbed          = "grabbed"
	EventDownloadFailed   = "downloadFailed"
	EventImportFailed     = "importFailed"
	EventImported         = "imported"
	EventHealthWarning    = "healthWarning"
	EventTorrentAdded     = "torrentAdded"
	EventTorrentCompleted = "torrentCompleted"
	EventTorrentDeleted   = "torrentDeleted"
	EventLibraryItemAdded = "libraryItemAdded"
	EventPlaybackStarted  = "playbackStarted"
	EventUpcomingPremiere = "upcomingPremiere"

	// EventTest is used by ad hoc dispatches from the host (e.g. a
	// "send test notification" button).
	EventTest = "test"
)

// KnownEventTypes enumerates every event type, in a stable order. New
// subscriptions get an enabled preference row seeded for each of these.
func KnownEventTypes() []string {
	return []string{
		EventGrabbed,
		EventDownloadFailed,
		EventImportFailed,
		EventImported,
		EventHealthWarning,
		EventTorrentAdded,
		EventTorrentCompleted,
		EventTorrentDeleted,
		EventLibraryItemAdded,
		EventPlaybackStarted,
		EventUpcomingPremiere,
		EventTest,
	}
}

// Event is one detected state transition, ready for delivery.
type Event struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Meta  map[string]any `json:"meta,omitempty"`
}
