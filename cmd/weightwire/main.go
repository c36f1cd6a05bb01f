package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/config"
	"weightwire/internal/infrastructure/logger"
	"weightwire/internal/infrastructure/storage"
	"weightwire/internal/infrastructure/svc"
	"weightwire/internal/interfaces/console"
	"weightwire/internal/interfaces/wsbridge"
)

const usage = `usage: weightwire <command> [flags]

commands:
  publish   publish weight events from a CSV file
  last      print last weights per symbol
  history   print one symbol's weight history
  matrix    print the dense weight matrix
  meta      show or write strategy metadata
  names     list registered strategies
  wipe      delete every record of the strategy
  tail      print live publish notifications
  serve     relay notifications to websocket clients
  export    archive the dense matrix to the configured backend
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "configs/config.toml", "path to config.toml")
	verbose := fs.Bool("v", false, "debug logging")

	var (
		file      = fs.String("file", "", "CSV file of symbol,dt,weight[,price[,ref]] rows")
		overwrite = fs.Bool("overwrite", false, "overwrite existing records")
		symbol    = fs.String("symbol", "", "symbol, empty for all")
		sdt       = fs.String("sdt", "", "start time, e.g. 20230924101900")
		edt       = fs.String("edt", "", "end time")
		withZero  = fs.Bool("with-zero", false, "keep zero-weight rows")
		setMeta   = fs.Bool("set", false, "write metadata from config")
		listMeta  = fs.Bool("list", false, "list every strategy's metadata")
		yes       = fs.Bool("yes", false, "skip the wipe confirmation")
	)
	_ = fs.Parse(args)

	logger.Setup(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}
	defer sc.Close()

	switch command {
	case "publish":
		err = runPublish(ctx, sc, *file, *overwrite)
	case "last":
		err = runLast(ctx, sc, *symbol, !*withZero)
	case "history":
		err = runHistory(ctx, sc, *symbol, *sdt, *edt)
	case "matrix":
		err = runMatrix(ctx, sc, *sdt, *edt)
	case "meta":
		err = runMeta(ctx, sc, *setMeta, *listMeta, *overwrite)
	case "names":
		err = runNames(ctx, sc)
	case "wipe":
		err = runWipe(ctx, sc, *yes)
	case "tail":
		err = runTail(ctx, sc)
	case "serve":
		err = wsbridge.New(sc.Store, sc.Keys).Run(ctx, cfg.Serve.Addr)
	case "export":
		err = runExport(ctx, sc, *sdt, *edt)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func runPublish(ctx context.Context, sc *svc.ServiceContext, file string, overwrite bool) error {
	if file == "" {
		return fmt.Errorf("-file is required")
	}
	events, err := readEvents(file)
	if err != nil {
		return err
	}

	sc.StartHeartbeat(ctx)
	accepted, err := sc.Publisher.PublishBatch(ctx, events, overwrite)
	if err != nil {
		return err
	}
	log.Info().Int("accepted", accepted).Int("submitted", len(events)).Msg("publish done")
	return nil
}

func runLast(ctx context.Context, sc *svc.ServiceContext, symbol string, ignoreZero bool) error {
	var symbols []string
	if symbol != "" {
		symbols = []string{symbol}
	}
	rows, err := sc.Reader.LastWeights(ctx, symbols, ignoreZero)
	if err != nil {
		return err
	}
	fmt.Print(console.Weights(rows))
	return nil
}

func runHistory(ctx context.Context, sc *svc.ServiceContext, symbol, sdt, edt string) error {
	if symbol == "" {
		return fmt.Errorf("-symbol is required")
	}
	start, end, err := parseWindow(sdt, edt)
	if err != nil {
		return err
	}
	if start.IsZero() {
		start = time.Date(1970, 1, 1, 0, 0, 0, 0, time.Local)
	}
	if end.IsZero() {
		end = time.Now()
	}
	rows, err := sc.Reader.History(ctx, symbol, start, end)
	if err != nil {
		return err
	}
	fmt.Print(console.Weights(rows))
	return nil
}

func runMatrix(ctx context.Context, sc *svc.ServiceContext, sdt, edt string) error {
	start, end, err := parseWindow(sdt, edt)
	if err != nil {
		return err
	}
	rows, err := sc.Reader.Matrix(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Print(console.Matrix(rows))
	return nil
}

func runMeta(ctx context.Context, sc *svc.ServiceContext, set, list, overwrite bool) error {
	if list {
		metas, err := sc.Registry.ListMetas(ctx)
		if err != nil {
			return err
		}
		fmt.Print(console.Metas(metas))
		return nil
	}
	if set {
		strat := sc.Config.Strategy
		return sc.Registry.SetMeta(ctx, model.StrategyMeta{
			BaseFreq:     strat.BaseFreq,
			Description:  strat.Description,
			Author:       strat.Author,
			OutsampleSdt: strat.OutsampleSdt,
		}, overwrite)
	}
	meta, err := sc.Registry.Meta(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		fmt.Println("no metadata")
		return nil
	}
	fmt.Print(console.Metas([]model.StrategyMeta{*meta}))
	return nil
}

func runNames(ctx context.Context, sc *svc.ServiceContext) error {
	names, err := sc.Registry.StrategyNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runWipe(ctx context.Context, sc *svc.ServiceContext, yes bool) error {
	confirm := func(n int) bool {
		fmt.Printf("%s: delete %d keys? (y/n): ", sc.Keys.Strategy, n)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		return strings.TrimSpace(strings.ToLower(line)) == "y"
	}
	if yes {
		confirm = nil
	}
	removed, names, err := sc.Registry.Wipe(ctx, confirm)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d keys, %d directory entries\n", removed, names)
	return nil
}

func runTail(ctx context.Context, sc *svc.ServiceContext) error {
	sub := sc.Store.PSubscribe(ctx, sc.Keys.ChannelPattern())
	defer sub.Close()

	log.Info().Str("pattern", sc.Keys.ChannelPattern()).Msg("tailing notifications")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if frame, ok := wsbridge.ParseNotification(msg.Payload); ok {
				fmt.Printf("%s  %s  %s  weight=%s price=%s ref=%s\n",
					frame.Dt, frame.Strategy, frame.Symbol, frame.Weight, frame.Price, frame.Ref)
			}
		}
	}
}

func runExport(ctx context.Context, sc *svc.ServiceContext, sdt, edt string) error {
	archiver, err := sc.Archiver()
	if err != nil {
		return err
	}
	start, end, err := parseWindow(sdt, edt)
	if err != nil {
		return err
	}
	rows, err := sc.Reader.Matrix(ctx, start, end)
	if err != nil {
		return err
	}
	if err := archiver.SaveRows(ctx, storage.FromMatrix(sc.Keys.Strategy, rows)); err != nil {
		return err
	}
	total, err := archiver.CountRows(ctx, sc.Keys.Strategy)
	if err != nil {
		return err
	}
	log.Info().Int("exported", len(rows)).Int64("archived_total", total).Msg("export done")
	return nil
}

// readEvents loads symbol,dt,weight[,price[,ref]] rows, with an optional
// header line.
func readEvents(path string) ([]model.WeightEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	events := make([]model.WeightEvent, 0, len(records))
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(rec[0], "symbol") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("line %d: want at least symbol,dt,weight", i+1)
		}
		dt, err := parseTime(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		weight, err := decimal.NewFromString(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad weight %q", i+1, rec[2])
		}
		ev := model.WeightEvent{Symbol: rec[0], Dt: dt, Weight: weight}
		if len(rec) > 3 && rec[3] != "" {
			if ev.Price, err = decimal.NewFromString(rec[3]); err != nil {
				return nil, fmt.Errorf("line %d: bad price %q", i+1, rec[3])
			}
		}
		if len(rec) > 4 {
			ev.Ref = rec[4]
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseWindow(sdt, edt string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if sdt != "" {
		if start, err = parseTime(sdt); err != nil {
			return start, end, err
		}
	}
	if edt != "" {
		if end, err = parseTime(edt); err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{model.DtLayout, "20060102150405", "2006-01-02", "20060102"} {
		if dt, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
