package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "playrank")
				So(manager.subsystem, ShouldEqual, "leaderboard")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)
			manager.submissions.WithLabelValues(OutcomeApplied).Inc()

			Convey("Then metrics are registered under the custom names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_ns_test_sub_submissions_total"], ShouldBeTrue)
			})
		})

		Convey("When empty option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "playrank")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording submissions by outcome", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeUnchanged))
			RecordSubmission(OutcomeUnchanged)
			RecordSubmission(OutcomeUnchanged)

			Convey("Then the labelled counter grows", func() {
				So(testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeUnchanged)), ShouldEqual, before+2)
			})
		})

		Convey("When recording conflicts and retries", func() {
			conflicts := testutil.ToFloat64(globalManager.versionConflicts)
			retries := testutil.ToFloat64(globalManager.submitRetries)
			RecordVersionConflict()
			RecordSubmitRetry()

			Convey("Then both counters grow by one", func() {
				So(testutil.ToFloat64(globalManager.versionConflicts), ShouldEqual, conflicts+1)
				So(testutil.ToFloat64(globalManager.submitRetries), ShouldEqual, retries+1)
			})
		})

		Convey("When recording cache lookups", func() {
			hits := testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues("hit"))
			misses := testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues("miss"))
			RecordCacheLookup(true)
			RecordCacheLookup(false)
			RecordCacheLookup(false)

			Convey("Then hits and misses are split", func() {
				So(testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues("hit")), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues("miss")), ShouldEqual, misses+2)
			})
		})

		Convey("When updating store gauges", func() {
			UpdateTablesTotal(3)
			UpdateEntriesTotal(42)

			Convey("Then the gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.tablesTotal), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.entriesTotal), ShouldEqual, 42)
			})
		})

		Convey("When recording the remaining families", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordSubmitLatency(12)
					RecordAdminAction("reset")
					RecordNotification("delivered")
					RecordGatewayError("get_user")
					RecordGlobalRankingDuration(3)
					RecordHTTPRequest("leaderboard", "GET", "200")
					RecordHTTPRequestDuration("leaderboard", "GET", "200", 4)
					RecordRepositoryUpdateLatency(1)
					RecordRepositoryQueryLatency(1)
					UpdateQueueSize(1)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(1)
					UpdateWorkerCount(2)
					RecordWorkerProcessingLatency(1)
					RecordWorkerError()
					RecordErrorByComponent("repository", "not_found")
					RecordErrorByType("client_error", "medium")
					RecordErrorByEndpoint("leaderboard", "GET", "not_found")
					RecordErrorLatency("http", "not_found", 2)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.5)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeApplied))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordSubmission(OutcomeApplied)
				}
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeApplied)), ShouldEqual, before+1000)
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordSubmission(OutcomeApplied)
		families, err := GetRegistry().Gather()

		So(err, ShouldBeNil)
		So(len(families), ShouldBeGreaterThan, 0)
	})
}
