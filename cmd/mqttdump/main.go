// Command mqttdump decodes a stream of MQTT control packets from a file or
// stdin and prints one line per packet. The input is the raw wire bytes of
// one direction of a connection; -hex accepts the same stream as hex text.
//
// When -protocol-version is not given, the stream must start with a CONNECT
// and the version is taken from it.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/axmq/codec/encoding"
	"github.com/axmq/codec/pkg/logger"
)

func main() {
	var (
		versionFlag = flag.String("protocol-version", "", "protocol version of the stream: 3.1, 3.1.1 or 5.0 (default: detect from CONNECT)")
		maxPacket   = flag.Uint("max-packet-size", uint(encoding.DefaultMaxPacketSize), "maximum packet size in bytes")
		hexInput    = flag.Bool("hex", false, "input is hex text instead of raw bytes")
		verbose     = flag.Bool("v", false, "log at debug level")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.New(level, os.Stderr)

	version, err := parseVersion(*versionFlag)
	if err != nil {
		log.Error("bad -protocol-version", "value", *versionFlag)
		os.Exit(2)
	}

	input := os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Error("open input", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	var src io.Reader = input
	if *hexInput {
		src, err = hexReader(input)
		if err != nil {
			log.Error("decode hex input", "error", err)
			os.Exit(1)
		}
	}

	decoder := encoding.NewDecoder(src, version,
		encoding.WithMaxPacketSize(uint32(*maxPacket)))

	count := 0
	for {
		pkt, err := decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("stream complete", "packets", count)
				return
			}
			log.Error("decode failed",
				"packet", count+1,
				"error", err,
				"reason_code", encoding.GetReasonCode(err).String())
			os.Exit(1)
		}

		count++
		log.Info(pkt.Type().String(), describe(pkt)...)
	}
}

func parseVersion(s string) (encoding.ProtocolVersion, error) {
	switch s {
	case "":
		return 0, nil
	case "3.1":
		return encoding.Version31, nil
	case "3.1.1":
		return encoding.Version311, nil
	case "5.0", "5":
		return encoding.Version50, nil
	default:
		return 0, fmt.Errorf("unknown version %q", s)
	}
}

// hexReader strips whitespace from hex text and yields the raw bytes
func hexReader(r io.Reader) (io.Reader, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cleaned := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return c
	}, string(text))

	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(string(raw)), nil
}

// describe renders the interesting fields of a packet as log attributes
func describe(pkt encoding.Packet) []any {
	switch p := pkt.(type) {
	case *encoding.ConnectPacket:
		attrs := []any{
			"version", p.Version.String(),
			"client_id", p.ClientID,
			"clean_start", p.CleanStart,
			"keep_alive", p.KeepAlive,
		}
		if p.Will != nil {
			attrs = append(attrs, "will_topic", p.Will.Topic, "will_qos", p.Will.QoS.String())
		}
		if p.UsernameFlag {
			attrs = append(attrs, "username", p.Username)
		}
		return attrs
	case *encoding.ConnackPacket:
		return []any{"session_present", p.SessionPresent, "reason", p.ReasonCode.String()}
	case *encoding.PublishPacket:
		attrs := []any{
			"topic", p.TopicName,
			"qos", p.QoS.String(),
			"retain", p.Retain,
			"dup", p.DUP,
			"payload_len", len(p.Payload),
		}
		if p.QoS > encoding.QoS0 {
			attrs = append(attrs, "packet_id", p.PacketID)
		}
		if alias, ok := p.Properties.TopicAlias(); ok {
			attrs = append(attrs, "topic_alias", alias)
		}
		return attrs
	case *encoding.PubackPacket:
		return []any{"packet_id", p.PacketID, "reason", p.ReasonCode.String()}
	case *encoding.PubrecPacket:
		return []any{"packet_id", p.PacketID, "reason", p.ReasonCode.String()}
	case *encoding.PubrelPacket:
		return []any{"packet_id", p.PacketID, "reason", p.ReasonCode.String()}
	case *encoding.PubcompPacket:
		return []any{"packet_id", p.PacketID, "reason", p.ReasonCode.String()}
	case *encoding.SubscribePacket:
		filters := make([]string, 0, len(p.Subscriptions))
		for _, sub := range p.Subscriptions {
			filters = append(filters, sub.TopicFilter)
		}
		return []any{"packet_id", p.PacketID, "filters", strings.Join(filters, ",")}
	case *encoding.SubackPacket:
		return []any{"packet_id", p.PacketID, "codes", len(p.ReasonCodes)}
	case *encoding.UnsubscribePacket:
		return []any{"packet_id", p.PacketID, "filters", strings.Join(p.TopicFilters, ",")}
	case *encoding.UnsubackPacket:
		return []any{"packet_id", p.PacketID}
	case *encoding.DisconnectPacket:
		return []any{"reason", p.ReasonCode.String()}
	case *encoding.AuthPacket:
		return []any{"reason", p.ReasonCode.String()}
	default:
		return nil
	}
}
