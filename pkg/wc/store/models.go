package store

// Repository maps a canonical repository root URL and UUID to a surrogate id.
type Repository struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Root string `gorm:"uniqueIndex;not null;size:1024"`
	UUID string `gorm:"column:uuid;not null;size:64"`
}

// TableName returns the table name for Repository.
func (Repository) TableName() string {
	return "repository"
}

// WCRoot is one administrative scope. LocalAbspath is nil for a working copy
// whose metadata lives next to its root.
type WCRoot struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	LocalAbspath *string `gorm:"uniqueIndex;size:4096"`
}

// TableName returns the table name for WCRoot.
func (WCRoot) TableName() string {
	return "wcroot"
}

// Node is one layer of state for a path. OpDepth 0 is BASE.
//
// ReposID/ReposPath/Revision describe the repository location at OpDepth 0
// and the copy-from origin at OpDepth > 0 (nil for plain additions).
type Node struct {
	WCID          int64   `gorm:"column:wc_id;primaryKey;autoIncrement:false"`
	LocalRelpath  string  `gorm:"column:local_relpath;primaryKey;size:4096"`
	OpDepth       int     `gorm:"column:op_depth;primaryKey;autoIncrement:false"`
	ParentRelpath *string `gorm:"column:parent_relpath;index:idx_nodes_parent;size:4096"`

	ReposID   *int64  `gorm:"column:repos_id"`
	ReposPath *string `gorm:"column:repos_path;size:4096"`
	Revision  *int64  `gorm:"column:revision"`

	Presence  string  `gorm:"column:presence;not null;size:32"`
	MovedHere bool    `gorm:"column:moved_here;not null"`
	MovedTo   *string `gorm:"column:moved_to;index:idx_nodes_moved_to;size:4096"`
	Kind      string  `gorm:"column:kind;not null;size:16"`

	Properties    []byte  `gorm:"column:properties"`
	Depth         *string `gorm:"column:depth;size:16"`
	Checksum      *string `gorm:"column:checksum;size:128"`
	SymlinkTarget *string `gorm:"column:symlink_target;size:4096"`

	ChangedRevision *int64  `gorm:"column:changed_revision"`
	ChangedDate     *int64  `gorm:"column:changed_date"`
	ChangedAuthor   *string `gorm:"column:changed_author;size:256"`

	TranslatedSize *int64 `gorm:"column:translated_size"`
	LastModTime    *int64 `gorm:"column:last_mod_time"`
	FileExternal   bool   `gorm:"column:file_external;not null"`
}

// TableName returns the table name for Node.
func (Node) TableName() string {
	return "nodes"
}

// ActualNode holds working-copy-local overlay state for a path.
type ActualNode struct {
	WCID          int64   `gorm:"column:wc_id;primaryKey;autoIncrement:false"`
	LocalRelpath  string  `gorm:"column:local_relpath;primaryKey;size:4096"`
	ParentRelpath *string `gorm:"column:parent_relpath;index:idx_actual_parent;size:4096"`
	Properties    []byte  `gorm:"column:properties"`
	Conflict      []byte  `gorm:"column:conflict_data"`
	Changelist    *string `gorm:"column:changelist;index:idx_actual_changelist;size:256"`
}

// TableName returns the table name for ActualNode.
func (ActualNode) TableName() string {
	return "actual_node"
}

// IsEmpty reports whether the row carries no payload and should be pruned.
func (a *ActualNode) IsEmpty() bool {
	return a.Properties == nil && a.Conflict == nil && a.Changelist == nil
}

// Lock is a repository-side lock cached for offline inspection.
type Lock struct {
	ReposID      int64   `gorm:"column:repos_id;primaryKey;autoIncrement:false"`
	ReposRelpath string  `gorm:"column:repos_relpath;primaryKey;size:4096"`
	LockToken    string  `gorm:"column:lock_token;not null;size:256"`
	LockOwner    *string `gorm:"column:lock_owner;size:256"`
	LockComment  *string `gorm:"column:lock_comment"`
	LockDate     *int64  `gorm:"column:lock_date"`
}

// TableName returns the table name for Lock.
func (Lock) TableName() string {
	return "lock"
}

// External records an externals definition registered below a directory.
type External struct {
	WCID                   int64   `gorm:"column:wc_id;primaryKey;autoIncrement:false"`
	LocalRelpath           string  `gorm:"column:local_relpath;primaryKey;size:4096"`
	ParentRelpath          string  `gorm:"column:parent_relpath;not null;index:idx_externals_parent;size:4096"`
	ReposID                int64   `gorm:"column:repos_id;not null"`
	Presence               string  `gorm:"column:presence;not null;size:32"`
	Kind                   string  `gorm:"column:kind;not null;size:16"`
	DefLocalRelpath        string  `gorm:"column:def_local_relpath;not null;index:idx_externals_def;size:4096"`
	DefReposRelpath        string  `gorm:"column:def_repos_relpath;not null;size:4096"`
	DefOperationalRevision *int64  `gorm:"column:def_operational_revision"`
	DefRevision            *int64  `gorm:"column:def_revision"`
	Owner                  *string `gorm:"column:owner;size:64"`
}

// TableName returns the table name for External.
func (External) TableName() string {
	return "externals"
}

// WorkQueueItem is one serialized deferred filesystem operation.
type WorkQueueItem struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	WCID int64  `gorm:"column:wc_id;not null;index"`
	Work []byte `gorm:"column:work;not null"`
}

// TableName returns the table name for WorkQueueItem.
func (WorkQueueItem) TableName() string {
	return "work_queue"
}

// WCLock is the persisted half of a working-copy lock. LockedLevels is -1
// for an infinite-depth lock.
type WCLock struct {
	WCID            int64  `gorm:"column:wc_id;primaryKey;autoIncrement:false"`
	LocalDirRelpath string `gorm:"column:local_dir_relpath;primaryKey;size:4096"`
	LockedLevels    int    `gorm:"column:locked_levels;not null"`
	OwnerID         string `gorm:"column:owner_id;not null;size:64"`
}

// TableName returns the table name for WCLock.
func (WCLock) TableName() string {
	return "wc_lock"
}

// AllModels returns every model managed by AutoMigrate.
func AllModels() []any {
	return []any{
		&Repository{},
		&WCRoot{},
		&Node{},
		&ActualNode{},
		&Lock{},
		&External{},
		&WorkQueueItem{},
		&WCLock{},
	}
}
