package syncengine

// SyncReport is the outcome of one syncWithIncremental call (spec §4.3/§5).
type SyncReport struct {
	Created       int
	Updated       int
	Deleted       int
	ParseFailures []string
	HasErrors     bool
	Cancelled     bool
	UsedFullSync  bool
}

func (r *SyncReport) TotalChanges() int { return r.Created + r.Updated + r.Deleted }
