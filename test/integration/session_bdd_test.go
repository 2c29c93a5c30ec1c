//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/bus"
	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/monitoring"
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
	"github.com/eliteGoblin/focusd/focuslock/test/fixtures"
)

const (
	ownApp    domain.AppID = "focuslock"
	browser   domain.AppID = "firefox"
	editor    domain.AppID = "code"
	instagram domain.AppID = "com.instagram.android"
	game      domain.AppID = "steam"
)

// world is one process' view of the data directory.
type world struct {
	store      *infra.EncryptedStore
	session    *usecase.SessionState
	focus      *usecase.FocusService
	classifier *policy.Classifier
	gatekeeper *usecase.Gatekeeper
	events     *bus.Bus
	metrics    *monitoring.Metrics
}

func openWorld(dataDir string, defaults domain.DeviceDefaults, platform domain.Platform, notifier domain.Notifier) *world {
	logger := zap.NewNop()

	store, err := infra.OpenStore(dataDir)
	Expect(err).NotTo(HaveOccurred())

	classifier := policy.NewClassifier(policy.NewCatalog(), defaults)
	session := usecase.NewSessionState(store, logger)
	history := usecase.NewHistory(store, logger)
	metrics := monitoring.NewMetrics()

	cfg := usecase.DefaultGatekeeperConfig()
	cfg.OwnAppID = ownApp
	cfg.FrontDelay = 0

	return &world{
		store:      store,
		session:    session,
		focus:      usecase.NewFocusService(session, history, classifier, nil, logger),
		classifier: classifier,
		gatekeeper: usecase.NewGatekeeper(session, classifier, policy.NewSystemAllowlist(defaults), platform, notifier, cfg, logger).
			WithMetrics(metrics),
		events:  bus.New(logger),
		metrics: metrics,
	}
}

func (w *world) countdown(platform domain.Platform) *daemon.Countdown {
	cfg := daemon.DefaultCountdownConfig()
	cfg.TickInterval = 20 * time.Millisecond
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.OwnAppID = ownApp
	return daemon.NewCountdown(cfg, w.session, w.events, platform, zap.NewNop()).WithMetrics(w.metrics)
}

func (w *world) close() {
	w.events.Close()
	Expect(w.store.Close()).To(Succeed())
}

func (w *world) selection(apps ...domain.AppID) *policy.Selection {
	sel := w.focus.NewSelection()
	for _, app := range apps {
		Expect(sel.Add(app)).To(Succeed())
	}
	return sel
}

var _ = Describe("Focus session", func() {
	var (
		ctx      context.Context
		dataDir  string
		defaults *fixtures.FakeDefaults
		platform *fixtures.FakePlatform
		notifier *fixtures.FakeNotifier
		w        *world
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dataDir, err = os.MkdirTemp("", "focuslock-integration-*")
		Expect(err).NotTo(HaveOccurred())

		defaults = fixtures.NewFakeDefaults()
		platform = fixtures.NewFakePlatform()
		notifier = &fixtures.FakeNotifier{}
		w = openWorld(dataDir, defaults, platform, notifier)
	})

	AfterEach(func() {
		w.close()
		os.RemoveAll(dataDir)
	})

	Describe("enforcement while locked", func() {
		BeforeEach(func() {
			_, err := w.focus.Start(ctx, time.Hour, w.selection(browser))
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets allowed, fixed and exempt apps through", func() {
			Expect(w.gatekeeper.Evaluate(ctx, browser)).To(Equal(usecase.VerdictAllowed))
			Expect(w.gatekeeper.Evaluate(ctx, fixtures.Dialer)).To(Equal(usecase.VerdictAllowed))
			Expect(w.gatekeeper.Evaluate(ctx, fixtures.Messaging)).To(Equal(usecase.VerdictAllowed))
			Expect(w.gatekeeper.Evaluate(ctx, fixtures.Keyboard)).To(Equal(usecase.VerdictExempt))
			Expect(w.gatekeeper.Evaluate(ctx, ownApp)).To(Equal(usecase.VerdictSelf))
			Expect(platform.SentHome()).To(BeEmpty())
		})

		It("sends unselected and hard-blocked apps home and brings focuslock back", func() {
			Expect(w.gatekeeper.Evaluate(ctx, game)).To(Equal(usecase.VerdictRedirected))
			Expect(w.gatekeeper.Evaluate(ctx, instagram)).To(Equal(usecase.VerdictRedirected))

			Expect(platform.SentHome()).To(Equal([]domain.AppID{game, instagram}))
			Expect(platform.BroughtToFront()).To(Equal([]domain.AppID{ownApp, ownApp}))

			notices := notifier.Notices()
			Expect(notices).To(HaveLen(1), "second notice falls inside the cooldown")
			Expect(notices[0].Title).To(Equal("App Blocked!"))
			Expect(testutil.ToFloat64(w.metrics.GatekeeperEvents.WithLabelValues("redirected"))).To(Equal(2.0))
		})

		It("follows a changed default messaging app", func() {
			Expect(w.gatekeeper.Evaluate(ctx, "element-desktop")).To(Equal(usecase.VerdictRedirected))

			defaults.SetMessaging("element-desktop")
			time.Sleep(1100 * time.Millisecond) // past the enforce cooldown for the same app
			Expect(w.gatekeeper.Evaluate(ctx, "element-desktop")).To(Equal(usecase.VerdictAllowed))
		})

		It("stops enforcing once cancelled", func() {
			cancelled, err := w.focus.Cancel(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled).To(BeTrue())

			Expect(w.gatekeeper.Evaluate(ctx, game)).To(Equal(usecase.VerdictUnlocked))
			Expect(platform.SentHome()).To(BeEmpty())
		})
	})

	Describe("countdown", func() {
		It("finishes the session exactly once and credits usage", func() {
			sub := w.events.Subscribe(bus.DefaultBuffer)
			defer sub.Close()

			snap, err := w.focus.Start(ctx, 150*time.Millisecond, w.selection(editor))
			Expect(err).NotTo(HaveOccurred())

			cd := w.countdown(platform)
			Expect(cd.Start(ctx)).To(Succeed())
			Eventually(cd.Done(), 3*time.Second).Should(BeClosed())

			Expect(cd.State()).To(Equal(daemon.CountdownFinished))
			Expect(w.session.IsLocked(ctx)).To(BeFalse())
			Expect(w.session.LifetimeUsage(ctx)).To(Equal(150 * time.Millisecond))
			Expect(platform.BroughtToFront()).To(ContainElement(ownApp))
			Expect(testutil.ToFloat64(w.metrics.SessionsFinished)).To(Equal(1.0))

			var finished int
			Eventually(func() int {
				for {
					select {
					case e := <-sub.C():
						if e.Kind == domain.EventFinished {
							Expect(e.SessionID).To(Equal(snap.SessionID))
							finished++
						}
					default:
						return finished
					}
				}
			}, time.Second).Should(Equal(1))

			// The allow-set survives unlock for the next session.
			Expect(w.focus.AllowedApps(ctx).Contains(editor)).To(BeTrue())

			// Nothing left to count down.
			Expect(w.countdown(platform).Start(ctx)).To(MatchError(domain.ErrNotLocked))
		})

		It("never finishes a cancelled session", func() {
			_, err := w.focus.Start(ctx, time.Hour, w.selection())
			Expect(err).NotTo(HaveOccurred())

			cd := w.countdown(platform)
			Expect(cd.Start(ctx)).To(Succeed())

			_, err = w.focus.Cancel(ctx)
			Expect(err).NotTo(HaveOccurred())

			Eventually(cd.Done(), 3*time.Second).Should(BeClosed())
			Expect(cd.State()).To(Equal(daemon.CountdownCancelled))
			Expect(w.session.LifetimeUsage(ctx)).To(BeZero())
		})
	})

	Describe("restart safety", func() {
		It("resumes a locked session from the encrypted store after a restart", func() {
			_, err := w.focus.Start(ctx, 400*time.Millisecond, w.selection(browser))
			Expect(err).NotTo(HaveOccurred())

			first := w.countdown(platform)
			Expect(first.Start(ctx)).To(Succeed())
			first.Stop()
			Eventually(first.Done()).Should(BeClosed())

			// Simulate the process going away.
			w.close()
			w = openWorld(dataDir, defaults, platform, notifier)
			Expect(w.session.IsLocked(ctx)).To(BeTrue())
			Expect(w.focus.AllowedApps(ctx).Contains(browser)).To(BeTrue())

			second := w.countdown(platform)
			Expect(second.Start(ctx)).To(Succeed())
			Eventually(second.Done(), 3*time.Second).Should(BeClosed())

			Expect(second.State()).To(Equal(daemon.CountdownFinished))
			Expect(w.session.LifetimeUsage(ctx)).To(Equal(400 * time.Millisecond))
		})
	})

	Describe("history", func() {
		It("restores a past session's apps after cancelling the active one", func() {
			_, err := w.focus.Start(ctx, 25*time.Minute, w.selection(browser, editor))
			Expect(err).NotTo(HaveOccurred())

			records, err := w.focus.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].DurationMinutes).To(Equal(25))

			restored, err := w.focus.CancelAndRestoreHistory(ctx, records[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.Cancelled).To(BeTrue())
			Expect(restored.Duration).To(Equal(25 * time.Minute))
			Expect(restored.Selection.Selected()).To(ConsistOf(browser, editor))
			Expect(w.focus.IsLocked(ctx)).To(BeFalse())

			_, err = w.focus.Start(ctx, restored.Duration, restored.Selection)
			Expect(err).NotTo(HaveOccurred())

			records, err = w.focus.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("deletes and clears records", func() {
			for i := 0; i < 3; i++ {
				_, err := w.focus.Start(ctx, time.Duration(i+1)*time.Minute, w.selection())
				Expect(err).NotTo(HaveOccurred())
				_, err = w.focus.Cancel(ctx)
				Expect(err).NotTo(HaveOccurred())
				time.Sleep(2 * time.Millisecond) // distinct timestamps
			}

			records, err := w.focus.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].DurationMinutes).To(Equal(3), "newest first")

			Expect(w.focus.DeleteHistory(ctx, records[1].TimestampMs)).To(Succeed())
			Expect(w.focus.DeleteHistory(ctx, records[1].TimestampMs)).To(MatchError(domain.ErrRecordNotFound))

			Expect(w.focus.ClearHistory(ctx)).To(Succeed())
			records, err = w.focus.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("daemon runner", func() {
		It("enforces foreground changes and exits when the session ends", func() {
			_, err := w.focus.Start(ctx, 300*time.Millisecond, w.selection(browser))
			Expect(err).NotTo(HaveOccurred())

			registry := infra.NewFileRegistry(dataDir, infra.NewProcessManager())
			source := infra.NewLineForegroundSource(strings.NewReader(strings.Join([]string{
				"# scripted foreground",
				string(browser),
				string(instagram),
				string(fixtures.Dialer),
			}, "\n")))

			runnerCfg := daemon.DefaultRunnerConfig()
			runnerCfg.HeartbeatInterval = 50 * time.Millisecond

			runner := daemon.NewRunner(
				runnerCfg,
				w.countdown(platform),
				w.gatekeeper,
				source,
				registry,
				w.events,
				domain.Daemon{PID: os.Getpid(), StartedAt: time.Now(), AppVersion: "test"},
				zap.NewNop(),
			)

			done := make(chan error, 1)
			go func() { done <- runner.Run(ctx) }()

			Eventually(registry.IsAlive).Should(BeTrue())
			Eventually(done, 3*time.Second).Should(Receive(BeNil()))

			Expect(platform.SentHome()).To(Equal([]domain.AppID{instagram}))
			Expect(w.session.IsLocked(ctx)).To(BeFalse())

			entry, err := registry.Get()
			Expect(err).NotTo(HaveOccurred())
			Expect(entry).To(BeNil(), "registration cleared on exit")
		})
	})
})
