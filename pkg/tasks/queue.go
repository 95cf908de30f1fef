package tasks

import "github.com/hikari-danmu/server/pkg/storage"

// queueFor assigns a task type to one of the three queues. Import/refresh
// bodies are network-heavy (scraper calls, danmaku download) and go on the
// download queue; delete bodies only touch the database and the on-disk
// store, so they go on the lighter management queue; predownload and
// webhook search-and-dispatch bodies are automatic follow-ups rather than
// user-requested imports, so they share the fallback queue and never
// block the download queue.
var queueTable = map[string]storage.QueueType{
	"generic_import":               storage.QueueDownload,
	"refresh_episode_task":         storage.QueueDownload,
	"full_refresh_task":            storage.QueueDownload,
	"delete_anime_task":            storage.QueueManagement,
	"delete_source_task":           storage.QueueManagement,
	"delete_episode_task":          storage.QueueManagement,
	"bulk_delete_anime_task":       storage.QueueManagement,
	"bulk_delete_source_task":      storage.QueueManagement,
	"webhook_search_and_dispatch":  storage.QueueFallback,
	"predownload_task":             storage.QueueFallback,
}

// queueFor returns the queue a task type runs on. Unknown task types
// default to the management queue rather than panicking, since a task
// submitted ad hoc (e.g. a future admin action) still needs somewhere
// to run.
func queueFor(taskType string) storage.QueueType {
	if q, ok := queueTable[taskType]; ok {
		return q
	}
	return storage.QueueManagement
}
