package geo

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

func wkbHex(order binary.AppendByteOrder, srid uint32, lng, lat float64) string {
	buf := []byte{1}
	if order == binary.BigEndian {
		buf[0] = 0
	}
	geomType := uint32(wkbPointType)
	if srid != 0 {
		geomType |= ewkbSRIDFlag
	}
	buf = order.AppendUint32(buf, geomType)
	if srid != 0 {
		buf = order.AppendUint32(buf, srid)
	}
	buf = order.AppendUint64(buf, math.Float64bits(lng))
	buf = order.AppendUint64(buf, math.Float64bits(lat))
	return hex.EncodeToString(buf)
}

func TestParsePosition(t *testing.T) {
	want := models.Position{Lat: -17.3895, Lng: -66.1568}

	tests := []struct {
		name string
		raw  any
		ok   bool
	}{
		{name: "geojson map", raw: map[string]any{"type": "Point", "coordinates": []any{-66.1568, -17.3895}}, ok: true},
		{name: "geojson text", raw: `{"type":"Point","coordinates":[-66.1568,-17.3895]}`, ok: true},
		{name: "geojson bytes", raw: []byte(`{"coordinates":[-66.1568,-17.3895]}`), ok: true},
		{name: "wkt", raw: "POINT(-66.1568 -17.3895)", ok: true},
		{name: "wkt lowercase with spaces", raw: "  point ( -66.1568   -17.3895 ) ", ok: true},
		{name: "ewkt", raw: "SRID=4326;POINT(-66.1568 -17.3895)", ok: true},
		{name: "position value", raw: want, ok: true},
		{name: "position pointer", raw: &want, ok: true},
		{name: "nil", raw: nil},
		{name: "nil position pointer", raw: (*models.Position)(nil)},
		{name: "empty string", raw: ""},
		{name: "garbage", raw: "not a point"},
		{name: "polygon geojson", raw: map[string]any{"type": "Polygon", "coordinates": []any{}}},
		{name: "short coordinates", raw: map[string]any{"coordinates": []any{1.0}}},
		{name: "non numeric coordinates", raw: map[string]any{"coordinates": []any{true, false}}},
		{name: "broken json", raw: `{"coordinates":[`},
		{name: "latitude out of range", raw: "POINT(10 95)"},
		{name: "wkb is display only", raw: wkbHex(binary.LittleEndian, 0, -66.1568, -17.3895)},
		{name: "unsupported type", raw: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePosition(tt.raw)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, want.Lat, got.Lat, 1e-9)
				assert.InDelta(t, want.Lng, got.Lng, 1e-9)
			}
		})
	}
}

func TestParseDisplayPosition_WKB(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{name: "little endian wkb", raw: wkbHex(binary.LittleEndian, 0, -66.1568, -17.3895)},
		{name: "little endian ewkb with srid", raw: wkbHex(binary.LittleEndian, 4326, -66.1568, -17.3895)},
		{name: "big endian wkb", raw: wkbHex(binary.BigEndian, 0, -66.1568, -17.3895)},
		{name: "hex as bytes", raw: []byte("0101000000" + hexFloat(-66.1568) + hexFloat(-17.3895))},
		{name: "still accepts wkt", raw: "POINT(-66.1568 -17.3895)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDisplayPosition(tt.raw)
			require.True(t, ok)
			assert.InDelta(t, -17.3895, got.Lat, 1e-9)
			assert.InDelta(t, -66.1568, got.Lng, 1e-9)
		})
	}
}

func TestParseDisplayPosition_Rejects(t *testing.T) {
	for _, raw := range []any{
		"zz",
		"0101000000",
		"0201000000" + hexFloat(1) + hexFloat(2),
		"0102000000" + hexFloat(1) + hexFloat(2),
		nil,
	} {
		_, ok := ParseDisplayPosition(raw)
		assert.False(t, ok, "%v", raw)
	}
}

func TestFormatWKT_RoundTrips(t *testing.T) {
	p := models.Position{Lat: -17.3895, Lng: -66.1568}
	assert.Equal(t, "SRID=4326;POINT(-66.1568 -17.3895)", FormatWKT(p))

	got, ok := ParsePosition(FormatWKT(p))
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func hexFloat(f float64) string {
	b := binary.LittleEndian.AppendUint64(nil, math.Float64bits(f))
	return hex.EncodeToString(b)
}
