package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/protomaps/pmtiles-reader/pmtiles"
	"github.com/rs/cors"
	"go.uber.org/zap"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cli struct {
	Verbose bool `help:"Log at debug level."`
	Quiet   bool `help:"Suppress progress bars."`

	Show struct {
		Path   string `arg:""`
		Bucket string `help:"Remote bucket"`
		JSON   bool   `name:"json" help:"Print the header and metadata as JSON."`
	} `cmd:"" help:"Inspect a local or remote archive."`

	Tile struct {
		Path    string `arg:""`
		Z       uint8  `arg:""`
		X       uint32 `arg:""`
		Y       uint32 `arg:""`
		Bucket  string `help:"Remote bucket"`
		Layers  bool   `help:"Print the layer names and feature counts of a vector tile instead of the raw bytes."`
		GeoJSON bool   `name:"geojson" help:"Print the features of a vector tile as GeoJSON."`
	} `cmd:"" help:"Fetch one tile from a local or remote archive and output on stdout."`

	Locate struct {
		Path   string  `arg:""`
		Lat    float64 `arg:""`
		Lon    float64 `arg:""`
		Z      uint8   `arg:""`
		Bucket string  `help:"Remote bucket"`
	} `cmd:"" help:"Find the tile and byte range holding a geographic position."`

	Coverage struct {
		Path   string `arg:""`
		Zoom   uint8  `arg:""`
		Region string `help:"GeoJSON file with the polygons to check." type:"existingfile"`
		Bbox   string `help:"Bounding box to check: min_lon,min_lat,max_lon,max_lat."`
		Bucket string `help:"Remote bucket"`
	} `cmd:"" help:"Count the tiles of a region at one zoom that the archive is missing."`

	Stats struct {
		Input  string `arg:"" type:"existingfile"`
		Output string `help:"Output path, defaults to <input>.tilestats.tsv.gz" type:"path"`
	} `cmd:"" help:"Add a vector tile statistics file (.tilestats.tsv.gz) used for further analysis with DuckDB."`

	Verify struct {
		Input string `arg:"" help:"Input archive." type:"existingfile"`
	} `cmd:"" help:"Verifies that a local archive is valid."`

	Serve struct {
		Path      string `arg:"" help:"Local path or bucket prefix"`
		Port      int    `default:"8080" env:"PMTILES_PORT"`
		Cors      string `help:"Comma-separated allowed CORS origins." env:"PMTILES_CORS"`
		CacheSize int    `default:"64" help:"Number of archives to keep headers and root directories for." env:"PMTILES_CACHE_SIZE"`
		Bucket    string `help:"Remote bucket"`
		PublicURL string `help:"Public base URL of tile endpoint for TileJSON e.g. https://example.com/tiles" env:"PMTILES_PUBLIC_URL"`
	} `cmd:"" help:"Run an HTTP proxy server for Z/X/Y tiles."`

	Version struct {
	} `cmd:"" help:"Show the program version."`
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openArchive memory-maps local paths and reads everything else through a bucket.
func openArchive(ctx context.Context, logger *zap.Logger, bucketURL string, path string) (*pmtiles.Archive, func(), error) {
	if bucketURL == "" && !strings.HasPrefix(path, "http") {
		archive, err := pmtiles.OpenFile(path, pmtiles.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return archive, func() { archive.Close() }, nil
	}

	bucketURL, key, err := pmtiles.NormalizeBucketKey(bucketURL, "", path)
	if err != nil {
		return nil, nil, err
	}
	bucket, err := pmtiles.OpenBucket(ctx, bucketURL, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bucket for %s: %w", bucketURL, err)
	}
	archive, err := pmtiles.OpenBucketArchive(ctx, bucket, key, pmtiles.WithLogger(logger))
	if err != nil {
		bucket.Close()
		return nil, nil, err
	}
	return archive, func() { bucket.Close() }, nil
}

func runTile(ctx context.Context, logger *zap.Logger) error {
	archive, closeArchive, err := openArchive(ctx, logger, cli.Tile.Bucket, cli.Tile.Path)
	if err != nil {
		return err
	}
	defer closeArchive()

	t := pmtiles.Zxy{Z: cli.Tile.Z, X: cli.Tile.X, Y: cli.Tile.Y}
	if !cli.Tile.Layers && !cli.Tile.GeoJSON {
		data, ok, err := archive.ReadTile(t.Z, t.X, t.Y)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tile %s not found in archive", t)
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	if archive.Header().TileType != pmtiles.Mvt {
		return fmt.Errorf("archive tile type is %s, not mvt", archive.Header().TileType)
	}
	data, ok, err := archive.ReadTileDecompressed(t.Z, t.X, t.Y)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tile %s not found in archive", t)
	}
	layers, err := pmtiles.DecodeVectorTile(data, t)
	if err != nil {
		return err
	}

	if cli.Tile.GeoJSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(layers.ToFeatureCollections())
	}
	counts := make(map[string]int, len(layers))
	for _, l := range layers {
		counts[l.Name] = len(l.Features)
	}
	for _, name := range pmtiles.LayerNames(layers) {
		fmt.Printf("%s\t%d\n", name, counts[name])
	}
	return nil
}

func runLocate(ctx context.Context, logger *zap.Logger) error {
	t, err := pmtiles.LatLonToTile(cli.Locate.Lat, cli.Locate.Lon, cli.Locate.Z)
	if err != nil {
		return err
	}
	tileID, err := t.ID()
	if err != nil {
		return err
	}
	fmt.Printf("tile: %s\n", t)
	fmt.Printf("tile id: %d\n", tileID)
	fmt.Printf("parent tile: %s\n", pmtiles.IDToZxy(pmtiles.ParentID(tileID)))
	nw := pmtiles.TileToLatLon(t.X, t.Y, t.Z)
	fmt.Printf("tile origin: (long: %f, lat: %f)\n", nw.Lon, nw.Lat)

	archive, closeArchive, err := openArchive(ctx, logger, cli.Locate.Bucket, cli.Locate.Path)
	if err != nil {
		return err
	}
	defer closeArchive()

	rng, ok, err := archive.Locate(tileID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("byte range: not in archive")
		return nil
	}
	fmt.Printf("byte range: %d-%d (%d bytes)\n", rng.Offset, rng.Offset+rng.Length, rng.Length)
	return nil
}

func runCoverage(ctx context.Context, logger *zap.Logger) error {
	var region orb.MultiPolygon
	var err error
	switch {
	case cli.Coverage.Region != "" && cli.Coverage.Bbox != "":
		return fmt.Errorf("only one of --region and --bbox can be set")
	case cli.Coverage.Region != "":
		data, readErr := os.ReadFile(cli.Coverage.Region)
		if readErr != nil {
			return readErr
		}
		region, err = pmtiles.UnmarshalRegion(data)
	case cli.Coverage.Bbox != "":
		region, err = pmtiles.BboxRegion(cli.Coverage.Bbox)
	default:
		return fmt.Errorf("one of --region or --bbox is required")
	}
	if err != nil {
		return err
	}

	archive, closeArchive, err := openArchive(ctx, logger, cli.Coverage.Bucket, cli.Coverage.Path)
	if err != nil {
		return err
	}
	defer closeArchive()

	c, err := archive.CoverRegion(region, cli.Coverage.Zoom)
	if err != nil {
		return err
	}
	fmt.Printf("zoom %d: %s tiles in region, %s present, %s missing\n", c.Zoom,
		humanize.Comma(int64(c.Covered)), humanize.Comma(int64(c.Present)), humanize.Comma(int64(c.Missing())))
	return nil
}

func runStats(ctx context.Context, logger *zap.Logger) error {
	archive, err := pmtiles.OpenFile(cli.Stats.Input, pmtiles.WithLogger(logger))
	if err != nil {
		return err
	}
	defer archive.Close()

	output := cli.Stats.Output
	if output == "" {
		output = cli.Stats.Input + ".tilestats.tsv.gz"
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := pmtiles.WriteLayerStats(ctx, archive, gzWriter, pmtiles.NewProgressWriter(cli.Quiet)); err != nil {
		gzWriter.Close()
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	logger.Info("wrote stats", zap.String("output", output))
	return nil
}

func runVerify(logger *zap.Logger) error {
	archive, err := pmtiles.OpenFile(cli.Verify.Input, pmtiles.WithLogger(logger))
	if err != nil {
		return err
	}
	defer archive.Close()
	if err := pmtiles.Verify(archive, pmtiles.NewProgressWriter(cli.Quiet)); err != nil {
		return err
	}
	fmt.Println("archive is valid")
	return nil
}

func runServe(ctx context.Context, logger *zap.Logger) error {
	pmtiles.SetBuildInfo(version, commit, date)
	server, err := pmtiles.NewServer(ctx, cli.Serve.Bucket, cli.Serve.Path, logger, cli.Serve.CacheSize, cli.Serve.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to create new server: %w", err)
	}
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server)

	var handler http.Handler = mux
	if cli.Serve.Cors != "" {
		handler = cors.New(cors.Options{
			AllowedOrigins: strings.Split(cli.Serve.Cors, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(mux)
	}

	logger.Info("serving",
		zap.String("bucket", cli.Serve.Bucket),
		zap.String("path", cli.Serve.Path),
		zap.Int("port", cli.Serve.Port),
		zap.String("cors", cli.Serve.Cors))
	return http.ListenAndServe(":"+strconv.Itoa(cli.Serve.Port), handler)
}

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "--help")
	}

	kctx := kong.Parse(&cli)

	logger, err := newLogger(cli.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	switch kctx.Command() {
	case "show <path>":
		var archive *pmtiles.Archive
		var closeArchive func()
		archive, closeArchive, err = openArchive(ctx, logger, cli.Show.Bucket, cli.Show.Path)
		if err == nil {
			err = pmtiles.Show(os.Stdout, archive, cli.Show.JSON)
			closeArchive()
		}
	case "tile <path> <z> <x> <y>":
		err = runTile(ctx, logger)
	case "locate <path> <lat> <lon> <z>":
		err = runLocate(ctx, logger)
	case "coverage <path> <zoom>":
		err = runCoverage(ctx, logger)
	case "stats <input>":
		err = runStats(ctx, logger)
	case "verify <input>":
		err = runVerify(logger)
	case "serve <path>":
		err = runServe(ctx, logger)
	case "version":
		fmt.Printf("pmtiles %s, commit %s, built at %s\n", version, commit, date)
	default:
		err = fmt.Errorf("unknown command %s", kctx.Command())
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
