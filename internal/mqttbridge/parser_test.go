package mqttbridge

import "testing"

func TestParserCompleteFragmentParsesImmediately(t *testing.T) {
	p := NewMessageParser(topics)
	cmd, ok := p.Feed(topics.CommandValve(), ChunkDetails{Complete: true, Data: []byte("true")})
	if !ok || cmd.Kind != KindValve || !cmd.Valve {
		t.Fatalf("expected immediate Valve(true), got %+v ok=%v", cmd, ok)
	}
}

func TestParserReassemblesAcrossChunks(t *testing.T) {
	p := NewMessageParser(topics)
	_, ok := p.Feed(topics.CommandFlowWatch(), ChunkDetails{InitialChunk: true, TotalDataSize: 5, Data: []byte("tr")})
	if ok {
		t.Fatalf("initial chunk alone must not complete")
	}
	cmd, ok := p.Feed(topics.CommandFlowWatch(), ChunkDetails{Data: []byte("ue"), Final: true})
	if !ok || cmd.Kind != KindFlowWatch || !cmd.FlowWatch {
		t.Fatalf("expected reassembled FlowWatch(true), got %+v ok=%v", cmd, ok)
	}
}

func TestParserAbortsOversizeChunk(t *testing.T) {
	p := NewMessageParser(topics)
	_, ok := p.Feed(topics.CommandFlowWatch(), ChunkDetails{InitialChunk: true, TotalDataSize: 17, Data: []byte("x")})
	if ok {
		t.Fatalf("oversize initial chunk must not produce a command")
	}
	cmd, ok := p.Feed(topics.CommandFlowWatch(), ChunkDetails{Data: []byte("y"), Final: true})
	if ok {
		t.Fatalf("a subsequent chunk after an abort must not complete, got %+v", cmd)
	}
}

func TestParserIgnoresInterleavedFragmentFromAnotherTopic(t *testing.T) {
	p := NewMessageParser(topics)
	_, ok := p.Feed(topics.CommandFlowWatch(), ChunkDetails{InitialChunk: true, TotalDataSize: 5, Data: []byte("t")})
	if ok {
		t.Fatalf("initial chunk alone must not complete")
	}
	// A subsequent chunk for a different, unlatched topic must be
	// dropped without disturbing the latched parser.
	cmd, ok := p.Feed(topics.CommandValve(), ChunkDetails{Data: []byte("rue"), Final: true})
	if ok {
		t.Fatalf("interleaved fragment from another topic must not complete, got %+v", cmd)
	}
}

func TestParserAtExactlySixteenBytesIsAccepted(t *testing.T) {
	p := NewMessageParser(topics)
	_, ok := p.Feed(topics.CommandSystemUpdate(), ChunkDetails{InitialChunk: true, TotalDataSize: maxChunkedSize, Data: nil, Final: false})
	if ok {
		t.Fatalf("initial chunk alone must not complete")
	}
	cmd, ok := p.Feed(topics.CommandSystemUpdate(), ChunkDetails{Data: nil, Final: true})
	if !ok || cmd.Kind != KindSystemUpdate {
		t.Fatalf("a total_data_size of exactly 16 must be accepted, got %+v ok=%v", cmd, ok)
	}
}
