package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

// FrameSource yields raw link-layer frames. ReadPacketData may return
// pcap.NextErrorTimeoutExpired when no frame arrived in time and io.EOF when
// the source is exhausted.
type FrameSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// Opener opens a live source on a named interface.
type Opener func(iface string, cfg Config) (FrameSource, error)

// Config controls how live sources are opened and polled.
type Config struct {
	SnapLen      int
	Promiscuous  bool
	PollInterval time.Duration
}

// DefaultConfig matches the pcap settings the capture loop was tuned for.
func DefaultConfig() Config {
	return Config{
		SnapLen:      65536,
		Promiscuous:  true,
		PollInterval: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SnapLen <= 0 {
		c.SnapLen = d.SnapLen
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// OpenLive opens iface with libpcap. The read timeout is the poll interval,
// so an idle interface returns control to the loop regularly.
func OpenLive(iface string, cfg Config) (FrameSource, error) {
	cfg = cfg.withDefaults()
	handle, err := pcap.OpenLive(iface, int32(cfg.SnapLen), cfg.Promiscuous, cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	if lt := handle.LinkType(); lt != layers.LinkTypeEthernet {
		handle.Close()
		return nil, fmt.Errorf("link type %v is not ethernet", lt)
	}
	return handle, nil
}

func isTimeout(err error) bool {
	var nextErr pcap.NextError
	return errors.As(err, &nextErr) && nextErr == pcap.NextErrorTimeoutExpired
}

// fileSource reads frames from a pcap or pcapng file.
type fileSource struct {
	file   *os.File
	reader interface {
		ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	}
}

// OpenReplay opens a capture file. Both pcap and pcapng are accepted; the
// link type must be Ethernet.
func OpenReplay(path string) (FrameSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		if r.LinkType() != layers.LinkTypeEthernet {
			f.Close()
			return nil, fmt.Errorf("%s: link type %v is not ethernet", path, r.LinkType())
		}
		return &fileSource{file: f, reader: r}, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind capture file: %w", err)
	}
	ng, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is neither pcap nor pcapng: %w", path, err)
	}
	if ng.LinkType() != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("%s: link type %v is not ethernet", path, ng.LinkType())
	}
	return &fileSource{file: f, reader: ng}, nil
}

func (s *fileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return s.reader.ReadPacketData()
}

func (s *fileSource) Close() {
	s.file.Close()
}
