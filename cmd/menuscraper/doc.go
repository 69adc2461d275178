// Package main hosts the menu scraper entrypoint.
//
// Architecture overview:
//   - Targets: venue page URLs come from scrape.targets, scrape.targets_file or positional arguments. The resolver
//     subtracts every URL already present in the destination table's source_url column, so an interrupted batch
//     resumes where it stopped.
//   - items: a headless Chromedp tab loads each venue page, clicks every "Show more" control and waits (bounded) for
//     the hidden items to render. The page parser walks the visible menu groupings and the extractor turns each item's
//     paragraphs into strength/origin and size/kind/price columns.
//   - venues: a Colly fetch of the same pages feeds the venue parser, which reads the header into one row.
//   - Persistence: rows go to SQLite (default) or Postgres. Tables and columns are created on first append.
//   - Failures: under policy=abort the first failing target stops the batch. Under policy=continue the failure is
//     logged, optionally spooled (local dir or GCS) with its rendered HTML and parsed rows, and the batch goes on.
//     Fetch failures always stop the batch.
//
// Quick checklist:
//   - Configure env vars: MENU_SCRAPE_POLICY, MENU_SCRAPE_DELAY, MENU_STORE_DRIVER, MENU_STORE_DSN,
//     MENU_SPOOL_BACKEND, MENU_METRICS_ADDR.
//   - Run locally: go run ./cmd/menuscraper items --config config.yaml https://example.com/venue/1
//   - See what is left: go run ./cmd/menuscraper remaining items --config config.yaml
package main
