// Command rrdemo drives one end-to-end reservation round trip: in
// "customer" role it builds a reservation request, publishes it gift-wrapped
// to a restaurant's public key, and waits for the matching response; in
// "restaurant" role it subscribes for incoming requests and answers each one
// automatically. Flag layout follows the teacher's main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synvya/nostr-rr/internal/buildinfo"
	"github.com/synvya/nostr-rr/internal/config"
	"github.com/synvya/nostr-rr/internal/durable"
	"github.com/synvya/nostr-rr/internal/envelope"
	"github.com/synvya/nostr-rr/internal/facade"
	"github.com/synvya/nostr-rr/internal/keys"
	"github.com/synvya/nostr-rr/internal/metrics"
	"github.com/synvya/nostr-rr/internal/publisher"
	"github.com/synvya/nostr-rr/internal/rumor"
	"github.com/synvya/nostr-rr/internal/subscriber"
	"github.com/synvya/nostr-rr/internal/waiter"

	"github.com/nbd-wtf/go-nostr"
)

func main() {
	var (
		role        = flag.String("role", "customer", "customer or restaurant")
		envFile     = flag.String("env-file", "", "optional .env file to load before reading RR_* variables")
		peerPK      = flag.String("peer", "", "customer: the restaurant's public key (hex or npub1...)")
		partySize   = flag.Int("party-size", 2, "customer: party size for the reservation request")
		reserveName = flag.String("name", "", "customer: name on the reservation")
		email       = flag.String("email", "", "customer: contact email (mailto: form added automatically)")
		durableDir  = flag.String("durable-dir", "", "path to a badger directory; enables the durable registry when set")
		metricsAddr = flag.String("metrics-addr", "", "if set, expose Prometheus metrics on this address (e.g. :9090)")
		waitSeconds = flag.Int("wait-seconds", 30, "customer: how long to wait for a response")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Full())
		return
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	opts := config.OptionsFromEnv()
	if *durableDir != "" {
		opts.DurableTableName = *durableDir
	}
	if *waitSeconds > 0 {
		opts.ResponseTimeout = time.Duration(*waitSeconds) * time.Second
	}
	cfg, err := config.Load(opts)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pub := publisher.New(cfg.Relays, publisher.DefaultTimeout)

	var correlator facade.Correlator
	if cfg.UsesDurableRegistry() {
		store, err := durable.OpenBadgerStore(cfg.DurableTableName)
		if err != nil {
			log.Fatalf("open durable store: %v", err)
		}
		defer store.Close()
		correlator = durable.New(store)
		fmt.Println("using durable correlation registry at", cfg.DurableTableName)
	} else {
		correlator = waiter.New()
		fmt.Println("using in-memory correlation registry")
	}

	f := facade.New(cfg.Identity, pub, correlator)

	switch *role {
	case "customer":
		runCustomer(ctx, f, cfg, correlator, *peerPK, *partySize, *reserveName, *email)
	case "restaurant":
		runRestaurant(ctx, cfg)
	default:
		log.Fatalf("unknown role %q (want customer or restaurant)", *role)
	}
}

// runCustomer starts its own subscriber before publishing anything, feeding
// every incoming reservation-response rumor to correlator.Deliver. This is
// the only thing that can ever unblock f.RequestResponse's Await: without a
// subscriber running on the customer's own identity, no response gift wrap
// addressed to it is ever received, and RequestResponse would time out on
// every call regardless of whether the restaurant answered.
func runCustomer(ctx context.Context, f *facade.Facade, cfg config.Config, correlator facade.Correlator, peerInput string, partySize int, name, email string) {
	if peerInput == "" {
		log.Fatal("customer role requires -peer")
	}
	restaurantPK, err := resolvePeer(peerInput)
	if err != nil {
		log.Fatalf("resolve peer: %v", err)
	}
	if name == "" {
		name = "Guest"
	}

	sub, err := subscriber.New(subscriber.Config{
		Relays:      cfg.Relays,
		RecipientSK: cfg.Identity.PrivateKeyHex,
		OnRumor: func(in *nostr.Event, wrap *nostr.Event) {
			if in.Kind != rumor.KindReservationResponse {
				return
			}
			correlator.Deliver(in)
		},
		OnError: func(err error, relay string) {
			log.Printf("subscriber error on %s: %v", relay, err)
		},
	})
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	sub.Start(ctx)
	defer sub.Stop()

	req := rumor.ReservationRequest{
		RestaurantPK: restaurantPK,
		PartySize:    partySize,
		Time:         time.Now().Add(24 * time.Hour).Unix(),
		TZID:         "UTC",
		Name:         name,
		Email:        mailtoOrEmpty(email),
	}
	tags, err := req.BuildTags()
	if err != nil {
		log.Fatalf("build reservation request: %v", err)
	}

	partial := envelope.RumorPartial{
		Kind:    rumor.KindReservationRequest,
		Tags:    tags,
		Content: "",
	}

	fmt.Println("publishing reservation request, waiting for response...")
	resp, err := f.RequestResponse(ctx, partial, restaurantPK, cfg.ResponseTimeout)
	if err != nil {
		log.Fatalf("request/response failed: %v", err)
	}

	parsed, err := rumor.ParseReservationResponse(resp)
	if err != nil {
		log.Fatalf("received malformed response: %v", err)
	}
	fmt.Printf("response: status=%s time=%d tzid=%s duration=%d\n",
		parsed.Status, parsed.Time, parsed.TZID, parsed.Duration)
}

func runRestaurant(ctx context.Context, cfg config.Config) {
	sub, err := subscriber.New(subscriber.Config{
		Relays:      cfg.Relays,
		RecipientSK: cfg.Identity.PrivateKeyHex,
		OnRumor: func(in *nostr.Event, wrap *nostr.Event) {
			handleIncoming(ctx, cfg, in)
		},
		OnError: func(err error, relay string) {
			log.Printf("subscriber error on %s: %v", relay, err)
		},
	})
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}

	sub.Start(ctx)
	fmt.Println("listening for reservation requests as", cfg.Identity.PublicKeyHex)
	<-ctx.Done()
	sub.Stop()
}

// handleIncoming answers a reservation request immediately with a confirmed
// response, gift-wrapped back to the requester. It is the restaurant side's
// counterpart to runCustomer's RequestResponse call, built directly on the
// envelope and publisher layers rather than the facade, since a responder
// never waits on a correlation registry of its own.
func handleIncoming(ctx context.Context, cfg config.Config, in *nostr.Event) {
	req, err := rumor.ParseReservationRequest(in)
	if err != nil {
		log.Printf("ignoring malformed reservation request: %v", err)
		return
	}
	fmt.Printf("reservation request from %s: party of %d for %s\n", req.Name, req.PartySize, time.Unix(req.Time, 0).UTC())

	resp := rumor.ReservationResponse{
		CustomerPK:     in.PubKey,
		RequestRumorID: in.ID,
		Status:         rumor.StatusConfirmed,
		Time:           req.Time,
		TZID:           req.TZID,
		Duration:       7200,
	}
	tags, err := resp.BuildTags()
	if err != nil {
		log.Printf("build response: %v", err)
		return
	}

	partial := envelope.RumorPartial{Kind: rumor.KindReservationResponse, Tags: tags}
	rumorEvt, err := envelope.MakeRumor(partial, cfg.Identity.PrivateKeyHex)
	if err != nil {
		log.Printf("make response rumor: %v", err)
		return
	}
	sealed, err := envelope.Seal(rumorEvt, cfg.Identity.PrivateKeyHex, in.PubKey)
	if err != nil {
		log.Printf("seal response: %v", err)
		return
	}
	wrapped, err := envelope.Wrap(sealed, in.PubKey)
	if err != nil {
		log.Printf("wrap response: %v", err)
		return
	}

	pub := publisher.New(cfg.Relays, publisher.DefaultTimeout)
	result, err := pub.Publish(ctx, wrapped)
	if err != nil {
		log.Printf("publish response: %v", err)
		return
	}
	fmt.Printf("response published: %d/%d relays accepted\n", result.SuccessCount, result.Total)
}

func resolvePeer(input string) (string, error) {
	return keys.ParsePublicKey(input)
}

func mailtoOrEmpty(email string) string {
	if email == "" {
		return ""
	}
	if len(email) >= 7 && email[:7] == "mailto:" {
		return email
	}
	return "mailto:" + email
}

func serveMetrics(addr string) {
	log.Printf("metrics listening on %s", addr)
	if err := metrics.ListenAndServe(addr); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}
