// Package service ties the revision store to the merge and resolution
// engine.
//
// Provider revisions are submitted as definition documents. SaveRevision
// numbers them, links them to the previous revision and refuses documents
// that break the lineage:
//
//	svc := service.New(store, service.DefaultConfig(), logger, metrics)
//	record, err := svc.SaveRevision(ctx, "customers", document)
//
// Consumer documents are resolved against a set of supported revisions:
//
//	res, err := svc.Resolve(ctx, "customers", []int{3, 4}, consumerDocument)
//	var verr *compatibility.ViolationError
//	if errors.As(err, &verr) {
//		// the consumer is not compatible
//	}
//
// Compiled histories are kept in an expiring LRU cache. A Warmer recompiles
// them on a cron schedule, and FileSystemStore.Watch events can be fed to
// WatchInvalidations when several processes share one store.
package service
