package orders

// TopicEvents carries every flash-sale event. One topic keeps order and
// reset events of a product in the same partition, in publish order.
const TopicEvents = "flashsale.events"

// Partition key = product_id.
func PartitionKey(productID string) []byte { return []byte(productID) }
