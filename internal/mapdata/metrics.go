package mapdata

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/mtworld/internal/logging"
)

// Метрики фасада. Регистрация выполняется один раз на процесс,
// сколько бы экземпляров MapData ни создавалось.
var (
	blockOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mtworld",
		Name:      "block_ops_total",
		Help:      "Общее число операций над блоками карты.",
	}, []string{"op", "status"})

	blockBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mtworld",
		Name:      "block_bytes",
		Help:      "Размер сериализованного блока в байтах.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"op"})

	blocksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mtworld",
		Name:      "blocks_skipped_total",
		Help:      "Блоки, пропущенные при потоковом обходе из-за ошибок декодирования.",
	})

	registerOnce sync.Once
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(blockOps, blockBytes, blocksSkipped)
	})
}

// ServeMetrics запускает HTTP-эндпоинт Prometheus на указанном адресе
// (например, ":2112"). Метод неблокирующий: сервер стартует в отдельной
// горутине и живёт до конца процесса.
func ServeMetrics(addr string) {
	registerMetrics()
	go func() {
		logging.Info("Prometheus /metrics доступен по адресу %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
}
