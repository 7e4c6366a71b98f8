package shared

// RestoreLockKey is the redis key serialising destructive backup restores.
const RestoreLockKey = "backup:restore:lock"
