package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"offerdesk/internal"
	"offerdesk/internal/app"
	"offerdesk/internal/batch"
	"offerdesk/internal/config"
	"offerdesk/internal/export"
	"offerdesk/internal/intake"
	"offerdesk/internal/logger"
	"offerdesk/internal/merge"
	"offerdesk/internal/normalize"
	"offerdesk/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	a, err := app.New(cfg)
	must(err)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "upload:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		_ = fs.Parse(args)
		if fs.NArg() == 0 {
			must(fmt.Errorf("at least one file is required"))
		}
		for _, path := range fs.Args() {
			content, err := os.ReadFile(path)
			must(err)
			item, added, err := a.Batch.Register(internal.IncomingDocument{Source: "upload", Filename: filepath.Base(path), Content: content})
			must(err)
			if !added {
				fmt.Printf("skipped %s (already registered)\n", path)
				continue
			}
			fmt.Printf("registered %s id=%s type=%s\n", item.Name, item.ID, item.MimeType)
		}
	case "batch:run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ModelProvider, "openai|gemini|grok")
		model := fs.String("model", cfg.Model, "model id")
		images := fs.Bool("include-images", cfg.IncludeImages, "ask the service for product images")
		product := fs.String("product-name", cfg.OptionalProductName, "optional product name hint")
		_ = fs.Parse(args)
		must(webhook.ValidateModel(*provider, *model))

		client := a.Webhook.WithOptions(webhook.Options{ModelProvider: *provider, Model: *model, IncludeImages: *images, OptionalProductName: *product})
		svc := batch.NewService(a.DB, cfg, a.Extractor, client)
		res, err := svc.RunPending(ctx)
		must(err)
		fmt.Printf("batch done processed=%d success=%d error=%d offers=%d\n", res.Processed, res.Succeeded, res.Failed, res.Offers)
		items, err := a.DB.ListUploadItems()
		must(err)
		for _, item := range items {
			if item.Status == internal.StatusError {
				fmt.Printf("  %s: %s\n", item.Name, item.Error)
			}
		}
	case "offers:list":
		offers, err := a.DB.LoadOffers()
		must(err)
		printOffers(offers)
	case "offers:wait":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		since := fs.Int64("since", -1, "revision to wait past (default: current)")
		_ = fs.Parse(args)
		if *since < 0 {
			rev, err := a.DB.OffersRevision()
			must(err)
			*since = rev
		}
		offers, rev, err := a.Watcher.WaitForOffers(ctx, *since)
		must(err)
		fmt.Printf("offers changed revision=%d\n", rev)
		printOffers(offers)
	case "offers:normalize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		in := fs.String("in", "", "webhook response JSON file")
		out := fs.String("out", "", "write normalized offers to this file")
		store := fs.Bool("append", false, "append the consolidated offer to the offer slot")
		_ = fs.Parse(args)
		if strings.TrimSpace(*in) == "" {
			must(fmt.Errorf("--in is required"))
		}
		payload, err := os.ReadFile(*in)
		must(err)
		shape, offers := normalize.Decode(payload)
		fmt.Printf("shape=%s offers=%d\n", shape, len(offers))
		if *out != "" {
			blob, err := json.MarshalIndent(offers, "", "  ")
			must(err)
			must(os.WriteFile(*out, blob, 0o644))
			fmt.Printf("written %s\n", *out)
		}
		if *store && len(offers) > 0 {
			n, err := a.DB.AppendOffers([]internal.Offer{*normalize.Consolidate(offers)})
			must(err)
			fmt.Printf("offer slot now holds %d offer(s)\n", n)
		}
	case "pdf:generate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		index := fs.Int("index", -1, "offer index (default: all)")
		outDir := fs.String("out", filepath.Join(cfg.OutputDir, "pdf"), "output directory")
		_ = fs.Parse(args)
		offers, err := a.DB.LoadOffers()
		must(err)
		if *index >= len(offers) {
			must(fmt.Errorf("offer index out of range: %d", *index))
		}
		must(os.MkdirAll(*outDir, 0o755))
		selected, offset := offers, 0
		if *index >= 0 {
			selected, offset = offers[*index:*index+1], *index
		}
		for _, doc := range a.Compositor.GenerateAll(ctx, selected) {
			i := doc.Index + offset
			if doc.Err != nil {
				fmt.Printf("offer %d failed: %v\n", i, doc.Err)
				continue
			}
			path := filepath.Join(*outDir, export.DocumentName(doc.Offer, i, len(offers)))
			must(os.WriteFile(path, doc.PDF, 0o644))
			fmt.Printf("generated %s pages=%d\n", path, doc.Pages)
		}
	case "pdf:merge":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "merged PDF path")
		_ = fs.Parse(args)
		if strings.TrimSpace(*out) == "" || fs.NArg() == 0 {
			must(fmt.Errorf("--out and at least one input PDF are required"))
		}
		var blobs [][]byte
		for _, path := range fs.Args() {
			blob, err := os.ReadFile(path)
			must(err)
			blobs = append(blobs, blob)
		}
		merged, err := merge.Merge(blobs)
		must(err)
		must(os.WriteFile(*out, merged, 0o644))
		n, _ := merge.PageCount(merged)
		fmt.Printf("merged %d file(s) into %s pages=%d\n", len(blobs), *out, n)
	case "export:zip":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		outDir := fs.String("out", cfg.OutputDir, "output directory")
		_ = fs.Parse(args)
		offers, err := a.DB.LoadOffers()
		must(err)
		archive, err := a.Archives.BuildZIP(ctx, offers)
		must(err)
		must(os.MkdirAll(*outDir, 0o755))
		path := filepath.Join(*outDir, archive.Name)
		must(os.WriteFile(path, archive.Data, 0o644))
		fmt.Printf("exported %s files=%d\n", path, len(archive.Files))
		for _, failure := range archive.Failures {
			fmt.Printf("  failed: %s\n", failure)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "produse.xlsx"), "output xlsx path")
		_ = fs.Parse(args)
		offers, err := a.DB.LoadOffers()
		must(err)
		must(export.ExportProductsToXLSX(offers, *out))
		fmt.Printf("exported %d offer(s) to %s\n", len(offers), *out)
	case "intake:mail":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.IntakeProvider, "gmail|imap")
		label := fs.String("label", cfg.IntakeLabel, "mailbox/label")
		max := fs.Int("max", cfg.IntakeFetchMax, "max messages")
		listen := fs.Bool("listen", false, "keep polling every INTAKE_INTERVAL_SEC")
		_ = fs.Parse(args)
		a.Config.IntakeProvider, a.Config.IntakeLabel, a.Config.IntakeFetchMax = *provider, *label, *max
		l := a.Listener()
		if *listen {
			must(l.Run(ctx))
			return
		}
		must(l.RunCycle(ctx))
	case "intake:watch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", cfg.IntakeWatchDir, "directory to watch")
		run := fs.Bool("run", cfg.IntakeAutoRunBatch, "run the batch after new files arrive")
		_ = fs.Parse(args)
		folder := intake.NewFolder(*dir, a.Batch)
		var onAdded func()
		if *run {
			onAdded = func() {
				err := a.Batch.Start(ctx, func(res batch.Result, err error) {
					if err != nil {
						logger.Error("batch failed: %v", err)
						return
					}
					fmt.Printf("batch done processed=%d success=%d error=%d\n", res.Processed, res.Succeeded, res.Failed)
				})
				if err != nil && !errors.Is(err, batch.ErrBatchRunning) {
					logger.Error("batch start: %v", err)
				}
			}
		}
		must(folder.Watch(ctx, onAdded))
	case "state:clear":
		must(a.Batch.Clear())
		fmt.Println("state cleared")
	case "serve":
		must(serve(ctx, a))
	default:
		usage()
		os.Exit(1)
	}
}

func serve(ctx context.Context, a *app.App) error {
	srv := a.HTTPServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printOffers(offers []internal.Offer) {
	if len(offers) == 0 {
		fmt.Println("no offers")
		return
	}
	for i, o := range offers {
		var total float64
		for _, p := range o.Content.Products {
			total += p.TotalValueNoVAT
		}
		fmt.Printf("%d\t%s\t%s\t%s\tproducts=%d sub=%d total=%.2f\n",
			i, normalize.OfferKey(o, i), o.Metadata.CompanyName, o.Content.Title, len(o.Content.Products), len(o.SubOffers), total)
	}
}

func usage() {
	fmt.Println("usage: offerdesk <command>")
	fmt.Println("commands:")
	fmt.Println("  upload:add <file>...")
	fmt.Println("  batch:run [--provider=openai --model=gpt-5.1 --include-images --product-name=...]")
	fmt.Println("  offers:list")
	fmt.Println("  offers:wait [--since=N]")
	fmt.Println("  offers:normalize --in=response.json [--out=offers.json] [--append]")
	fmt.Println("  pdf:generate [--index=N] [--out=./out/pdf]")
	fmt.Println("  pdf:merge --out=merged.pdf <file.pdf>...")
	fmt.Println("  export:zip [--out=./out]")
	fmt.Println("  export:xlsx [--out=./out/produse.xlsx]")
	fmt.Println("  intake:mail [--provider=imap|gmail --label=INBOX --max=20] [--listen]")
	fmt.Println("  intake:watch [--dir=./data/inbox] [--run]")
	fmt.Println("  state:clear")
	fmt.Println("  serve")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
