// Package watcher watches chat session directories and reports which
// workspaces changed.
//
// fsnotify is used where available; directories it cannot watch are
// polled instead. Events are debounced so the burst of writes the host
// makes while saving a session arrives as one batch.
//
//	w := watcher.New(watcher.DefaultOptions())
//	defer w.Stop()
//	w.Add(ws.ID, ws.SessionsDir())
//	go w.Start(ctx)
//	for batch := range w.Events() {
//	    for _, id := range watcher.Affected(batch) {
//	        // re-analyse workspace id
//	    }
//	}
package watcher
