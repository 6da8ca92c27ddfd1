package mongodb

const (
	UsersCollection          = "users"           // internal user records
	DeviceSessionsCollection = "device_sessions" // in-flight device authorizations
	VaultEntriesCollection   = "vault_entries"   // provider credentials
)
