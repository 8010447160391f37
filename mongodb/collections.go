package mongodb

const (
	// KeyValueCollection is the default collection for keyed store entries.
	KeyValueCollection = "sfapi_kv"
)
