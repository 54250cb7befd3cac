package tunnel

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientSession is one connected client parsed from the OpenVPN status file.
type ClientSession struct {
	CommonName     string
	RealAddress    string
	VirtualAddr    netip.Addr
	RxBytes        int64
	TxBytes        int64
	ConnectedSince time.Time
}

// statusTimeLayout is OpenVPN's human-readable timestamp format.
const statusTimeLayout = "Mon Jan 2 15:04:05 2006"

// ReadStatusFile parses an OpenVPN status file (versions 1 and 2).
func ReadStatusFile(path string) ([]ClientSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open status file: %w", err)
	}
	defer f.Close()

	var (
		sessions  []ClientSession
		inClients bool
		inRouting bool
		virtual   = make(map[string]netip.Addr)
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Version 2: one self-contained CLIENT_LIST line per client.
		if strings.HasPrefix(line, "CLIENT_LIST,") {
			if s, ok := parseClientListV2(line); ok {
				sessions = append(sessions, s)
			}
			continue
		}

		// Version 1: a client block followed by a routing table block.
		switch {
		case line == "OpenVPN CLIENT LIST" || strings.HasPrefix(line, "Updated,"):
			continue
		case strings.HasPrefix(line, "Common Name,Real Address,"):
			inClients = true
			continue
		case line == "ROUTING TABLE":
			inClients = false
			continue
		case strings.HasPrefix(line, "Virtual Address,Common Name,"):
			inRouting = true
			continue
		case line == "GLOBAL STATS" || line == "END":
			inClients = false
			inRouting = false
			continue
		}

		if inClients {
			if s, ok := parseClientV1(line); ok {
				sessions = append(sessions, s)
			}
		}
		if inRouting {
			fields := strings.Split(line, ",")
			if len(fields) >= 2 {
				if a, err := netip.ParseAddr(fields[0]); err == nil {
					virtual[fields[1]] = a
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	// Join v1 routing entries onto the client block.
	for i := range sessions {
		if !sessions[i].VirtualAddr.IsValid() {
			sessions[i].VirtualAddr = virtual[sessions[i].CommonName]
		}
	}
	return sessions, nil
}

// parseClientV1 parses "name,real,bytesRx,bytesTx,connected since".
func parseClientV1(line string) (ClientSession, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return ClientSession{}, false
	}
	rx, err1 := strconv.ParseInt(fields[2], 10, 64)
	tx, err2 := strconv.ParseInt(fields[3], 10, 64)
	if err1 != nil || err2 != nil {
		return ClientSession{}, false
	}
	since, _ := time.Parse(statusTimeLayout, fields[4])
	return ClientSession{
		CommonName:     fields[0],
		RealAddress:    fields[1],
		RxBytes:        rx,
		TxBytes:        tx,
		ConnectedSince: since,
	}, true
}

// parseClientListV2 parses the version 2 CLIENT_LIST record:
// CLIENT_LIST,name,real,virtual,virtualV6,bytesRx,bytesTx,since,sinceEpoch,…
func parseClientListV2(line string) (ClientSession, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 9 {
		return ClientSession{}, false
	}
	rx, err1 := strconv.ParseInt(fields[5], 10, 64)
	tx, err2 := strconv.ParseInt(fields[6], 10, 64)
	if err1 != nil || err2 != nil {
		return ClientSession{}, false
	}
	s := ClientSession{
		CommonName:  fields[1],
		RealAddress: fields[2],
		RxBytes:     rx,
		TxBytes:     tx,
	}
	if a, err := netip.ParseAddr(fields[3]); err == nil {
		s.VirtualAddr = a
	}
	if epoch, err := strconv.ParseInt(fields[8], 10, 64); err == nil {
		s.ConnectedSince = time.Unix(epoch, 0).UTC()
	} else {
		s.ConnectedSince, _ = time.Parse(statusTimeLayout, fields[7])
	}
	return s, true
}
