package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// MaxMindProvider reads continent names from a GeoLite2 Country or City
// database.
type MaxMindProvider struct {
	reader *maxminddb.Reader
}

type continentRecord struct {
	Continent struct {
		Code  string            `maxminddb:"code"`
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"continent"`
}

// NewMaxMindProvider opens the database at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Region returns the English continent name for ip.
func (m *MaxMindProvider) Region(ip string) (string, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}

	var record continentRecord
	if err := m.reader.Lookup(parsedIP, &record); err != nil {
		return "", err
	}
	if name := record.Continent.Names["en"]; name != "" {
		return name, nil
	}
	return "", fmt.Errorf("no continent for %s", ip)
}

// Close closes the GeoIP database.
func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}
