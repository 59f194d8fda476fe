package consumer

import (
	"context"

	"smart-board/internal/worker/ingest"
	"smart-board/internal/worker/registry"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// IngestHandler 把 ingest feed 的交易载荷解析成事件并写入事件存储
// 坏消息丢弃不报错，feed 的投递顺序不作任何假设
type IngestHandler struct {
	tl    *zap.Logger
	reg   *registry.Registry
	store *ingest.Store
}

func NewIngestHandler(tl *zap.Logger, reg *registry.Registry, store *ingest.Store) *IngestHandler {
	return &IngestHandler{tl: tl, reg: reg, store: store}
}

func (h *IngestHandler) HandleMessage(msg kafka.Message) {
	events := ingest.ParsePayload(msg.Value, h.reg.Contains)
	if len(events) == 0 {
		return
	}
	stored, total := h.store.Append(context.Background(), events)
	h.tl.Debug("ingest message handled",
		zap.Int("parsed", len(events)),
		zap.Int("stored", stored),
		zap.Int("total", total))
}
