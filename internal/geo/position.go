package geo

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

var wktPoint = regexp.MustCompile(`(?i)^POINT\s*\(\s*([-+0-9.eE]+)\s+([-+0-9.eE]+)\s*\)$`)

const (
	wkbPointType = 1
	ewkbSRIDFlag = 0x20000000
)

// ParsePosition decodes a stored position in the formats accepted on the
// security path: a GeoJSON point (decoded map or JSON text) with
// coordinates [lng, lat], or WKT "POINT(lng lat)", optionally prefixed with
// an EWKT "SRID=n;" tag. It reports false for anything it does not recognise.
func ParsePosition(raw any) (models.Position, bool) {
	switch v := raw.(type) {
	case nil:
		return models.Position{}, false
	case models.Position:
		return validPosition(v.Lat, v.Lng)
	case *models.Position:
		if v == nil {
			return models.Position{}, false
		}
		return validPosition(v.Lat, v.Lng)
	case map[string]any:
		return parseGeoJSON(v)
	case []byte:
		return parseText(string(v), false)
	case string:
		return parseText(v, false)
	}
	return models.Position{}, false
}

// ParseDisplayPosition accepts everything ParsePosition does plus hex
// encoded WKB / EWKB points as returned by PostGIS for raw geography columns.
// Only map and list rendering should rely on it.
func ParseDisplayPosition(raw any) (models.Position, bool) {
	if p, ok := ParsePosition(raw); ok {
		return p, true
	}
	switch v := raw.(type) {
	case string:
		return parseText(v, true)
	case []byte:
		return parseText(string(v), true)
	}
	return models.Position{}, false
}

// FormatWKT renders a position as an EWKT point in SRID 4326.
func FormatWKT(p models.Position) string {
	return fmt.Sprintf("SRID=4326;POINT(%s %s)",
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64))
}

func parseText(s string, allowWKB bool) (models.Position, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Position{}, false
	}

	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return models.Position{}, false
		}
		return parseGeoJSON(obj)
	}

	if strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		idx := strings.IndexByte(s, ';')
		if idx < 0 {
			return models.Position{}, false
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if m := wktPoint.FindStringSubmatch(s); m != nil {
		lng, errLng := strconv.ParseFloat(m[1], 64)
		lat, errLat := strconv.ParseFloat(m[2], 64)
		if errLng != nil || errLat != nil {
			return models.Position{}, false
		}
		return validPosition(lat, lng)
	}

	if allowWKB {
		return parseWKBHex(s)
	}
	return models.Position{}, false
}

func parseGeoJSON(obj map[string]any) (models.Position, bool) {
	if t, ok := obj["type"].(string); ok && !strings.EqualFold(t, "Point") {
		return models.Position{}, false
	}
	coords, ok := obj["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return models.Position{}, false
	}
	lng, okLng := toFloat(coords[0])
	lat, okLat := toFloat(coords[1])
	if !okLng || !okLat {
		return models.Position{}, false
	}
	return validPosition(lat, lng)
}

func parseWKBHex(s string) (models.Position, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, `\x`), "0x")
	buf, err := hex.DecodeString(s)
	if err != nil || len(buf) < 21 {
		return models.Position{}, false
	}

	var order binary.ByteOrder
	switch buf[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return models.Position{}, false
	}

	geomType := order.Uint32(buf[1:5])
	offset := 5
	if geomType&ewkbSRIDFlag != 0 {
		offset += 4
	}
	if geomType&0xFF != wkbPointType || len(buf) < offset+16 {
		return models.Position{}, false
	}

	lng := math.Float64frombits(order.Uint64(buf[offset : offset+8]))
	lat := math.Float64frombits(order.Uint64(buf[offset+8 : offset+16]))
	return validPosition(lat, lng)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func validPosition(lat, lng float64) (models.Position, bool) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return models.Position{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.Position{}, false
	}
	return models.Position{Lat: lat, Lng: lng}, true
}
