// Package aggregate derives the dimension keys and time buckets shared by
// every writer and reader of the denormalized metrics, and accumulates
// per-key deltas in memory before they are written.
package aggregate

import "strings"

// BucketSizeMs is the width of one time-series bucket. Changing it
// invalidates every stored bucket.
const BucketSizeMs int64 = 10_000

const (
	KeyGlobal       = "global"
	SeriesKeyGlobal = "ts:global"

	brandPrefix       = "brand:"
	customerPrefix    = "customer:"
	devicePrefix      = "device:"
	seriesBrandPrefix = "ts:brand:"
	seriesAdPrefix    = "ts:campaign:"
)

// Bucket floors ts (epoch millis) to the start of its bucket.
func Bucket(ts int64) int64 {
	b := ts / BucketSizeMs
	if ts < 0 && ts%BucketSizeMs != 0 {
		b--
	}
	return b * BucketSizeMs
}

func BrandKey(brandID string) string       { return brandPrefix + brandID }
func CustomerKey(customerID string) string { return customerPrefix + customerID }
func DeviceKey(device string) string       { return devicePrefix + device }

func BrandDeviceKey(brandID, device string) string {
	return BrandDevicePrefix(brandID) + device
}

// DevicePrefix is the common prefix of all global device keys.
func DevicePrefix() string { return devicePrefix }

// BrandDevicePrefix is the common prefix of all device keys of one brand.
func BrandDevicePrefix(brandID string) string {
	return brandPrefix + brandID + ":" + devicePrefix
}

func SeriesBrandKey(brandID string) string { return seriesBrandPrefix + brandID }
func SeriesCampaignKey(adID string) string { return seriesAdPrefix + adID }

// DeviceFromKey strips prefix from key and returns the device label.
func DeviceFromKey(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}

// Dimensions identifies every slice one event contributes to.
type Dimensions struct {
	AdID       string
	BrandID    string
	CustomerID string
	Device     string
}

// ScalarKeys returns the scalar counter keys for d. Device keys are only
// produced when a device is present.
func (d Dimensions) ScalarKeys() []string {
	keys := make([]string, 0, 5)
	keys = append(keys, KeyGlobal, BrandKey(d.BrandID))
	if d.CustomerID != "" {
		keys = append(keys, CustomerKey(d.CustomerID))
	}
	if d.Device != "" {
		keys = append(keys, DeviceKey(d.Device), BrandDeviceKey(d.BrandID, d.Device))
	}
	return keys
}

// SeriesKeys returns the time-series keys for d.
func (d Dimensions) SeriesKeys() []string {
	return []string{SeriesKeyGlobal, SeriesBrandKey(d.BrandID), SeriesCampaignKey(d.AdID)}
}
