package redis

// Redis key naming conventions for stepchain data.
// All keys carry a prefix, "stepchain:" unless WithPrefix overrides it.

const defaultKeyPrefix = "stepchain:"

// deliveryKey returns the Hash key for a delivery: {prefix}delivery:{id}
func (s *Store) deliveryKey(id string) string { return s.prefix + "delivery:" + id }

// dueKey is the Sorted Set of delivery IDs scored by RunAt in unix millis.
func (s *Store) dueKey() string { return s.prefix + "due" }
