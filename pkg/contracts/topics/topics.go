package topics

const (
	// Market
	MarketEvents = "market_events"

	// DLQs
	MarketEventsDLQ = "market_events_dlq"
)

// Canal Redis Pub/Sub usado pelo feed
const MarketEventsBroadcast = "market_events_broadcast"
