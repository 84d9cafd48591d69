package scheduler

import "github.com/flowtitan/flowtitan/internal/session"

// sessionStoreAdapter satisfies PersistenceStore against the concrete
// session.Store, round-tripping jobs through the session's Context map
// under PersistenceKey.
type sessionStoreAdapter struct {
	store *session.Store
}

// NewSessionPersistence wraps store for use as a TemporalScheduler's
// PersistenceStore.
func NewSessionPersistence(store *session.Store) PersistenceStore {
	return &sessionStoreAdapter{store: store}
}

func (a *sessionStoreAdapter) Get(sessionID string) (map[string]interface{}, bool) {
	rec, ok := a.store.Get(sessionID)
	if !ok {
		return nil, false
	}
	return rec.Context, true
}

func (a *sessionStoreAdapter) Save(sessionID string, jobs map[string]PersistedJob) error {
	_, err := a.store.Update(sessionID, func(rec *session.Record) {
		if rec.Context == nil {
			rec.Context = map[string]interface{}{}
		}
		rec.Context[PersistenceKey] = jobs
	})
	return err
}
