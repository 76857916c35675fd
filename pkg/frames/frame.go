package frames

const (
	MetaStreamID = "stream_id"
	MetaTraceID  = "trace_id"
	MetaLanguage = "language"
	MetaSource   = "source"
)

// AudioFrame is one chunk of raw PCM16 little-endian mono audio as received
// from a client. Frames are immutable after construction.
type AudioFrame struct {
	pts  int64
	data []byte
	rate int
	ch   int
	meta map[string]string
}

func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	merged := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	if streamID != "" {
		merged[MetaStreamID] = streamID
	}
	return merged
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
