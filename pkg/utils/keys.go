package utils

import "fmt"

func SnapshotKey(feed string) string {
	return fmt.Sprintf("smart_board:snapshot:%s", feed)
}

func IngestEventsKey() string {
	return "smart_board:ingest:events"
}

func TokenMetaKey(mint string) string {
	return fmt.Sprintf("smart_board:token_meta:%s", mint)
}

func RefreshLockKey() string {
	return "smart_board:refresh:lock"
}

func NativePriceKey() string {
	return "smart_board:price:SOL_USD"
}
