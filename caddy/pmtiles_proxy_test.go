package caddy

import (
	"testing"

	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCaddyfile(t *testing.T) {
	d := caddyfile.NewTestDispenser(`
	pmtiles_proxy {
		bucket s3://tiles?region=us-east-1
		prefix basemaps
		cache_size 16
		public_url https://example.com/tiles
	}`)
	var m Middleware
	require.NoError(t, m.UnmarshalCaddyfile(d))
	assert.Equal(t, Middleware{
		Bucket:    "s3://tiles?region=us-east-1",
		Prefix:    "basemaps",
		CacheSize: 16,
		PublicURL: "https://example.com/tiles",
	}, m)
}

func TestUnmarshalCaddyfileRejects(t *testing.T) {
	for name, input := range map[string]string{
		"bad cache size":  "pmtiles_proxy {\n cache_size lots\n}",
		"missing value":   "pmtiles_proxy {\n bucket\n}",
		"unknown setting": "pmtiles_proxy {\n max_age 60\n}",
	} {
		var m Middleware
		assert.Error(t, m.UnmarshalCaddyfile(caddyfile.NewTestDispenser(input)), name)
	}
}

func TestValidate(t *testing.T) {
	m := Middleware{}
	assert.Error(t, m.Validate())

	m = Middleware{Bucket: "file:///var/tiles"}
	assert.Error(t, m.Validate())

	m = Middleware{Bucket: "s3://tiles", Prefix: "/abs", CacheSize: 64}
	assert.Error(t, m.Validate())

	m = Middleware{Bucket: "file:///var/tiles", CacheSize: 64}
	require.NoError(t, m.Validate())

	m = Middleware{Bucket: "s3://tiles", Prefix: "basemaps", CacheSize: 64}
	require.NoError(t, m.Validate())
}
