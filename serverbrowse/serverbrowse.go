// Package serverbrowse implements the stateless, connectionless
// server-browse protocol: master-server and direct-to-server
// request/response pairs carrying server lists and per-server info,
// distinct from the chunked session protocol in protocol/ and sharing
// only the variable-length integer codec (internal/packer) with it.
//
// Ported from original_source/serverbrowse/src/protocol.rs's
// Header/REQUEST_*/parse_response/parse_server_info, adapted from its
// zero-copy borrowed-slice style to owned Go values.
package serverbrowse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sort"

	"ttnetgo/internal/packer"
)

// HeaderLen is the fixed length of every connectionless server-browse
// header: ten 0xff bytes followed by a four-byte tag.
const HeaderLen = 14

// Header is one packet's full 14-byte leading tag.
type Header [HeaderLen]byte

func header(tag string) Header {
	var h Header
	for i := 0; i < 10; i++ {
		h[i] = 0xff
	}
	copy(h[10:], tag)
	return h
}

// Request/response headers, named after the ASCII tag Teeworlds uses
// on the wire (e.g. "list" -> List5, "lis2" -> List6).
var (
	RequestList5   = header("reqt")
	RequestList6   = header("req2")
	List5          = header("list")
	List6          = header("lis2")
	RequestCount   = header("cou2")
	Count          = header("siz2")
	RequestInfo5   = header("gie2")
	RequestInfo6   = header("gie3")
	RequestInfo664 = header("fstd")
	Info5          = header("inf2")
	Info6          = header("inf3")
	Info664        = header("dtsf")
)

// MaxClients bounds a ServerInfo's player list; each version's cap is
// at most this (see ServerInfoVersion.MaxClients).
const MaxClients = 64

// RequestList5/6 and RequestCount build bare connectionless packets
// carrying no payload beyond the header.
func BuildRequestList5() []byte { return RequestList5[:] }
func BuildRequestList6() []byte { return RequestList6[:] }
func BuildRequestCount() []byte { return RequestCount[:] }

// BuildRequestInfo builds a request_info_5/6/6_64 packet: the header
// plus a single trailing token byte, per request_info_num in the
// reference.
func BuildRequestInfo(h Header, token byte) []byte {
	out := make([]byte, HeaderLen+1)
	copy(out, h[:])
	out[HeaderLen] = token
	return out
}

// PlayerInfo is one client entry in a ServerInfo's player list.
type PlayerInfo struct {
	Name     string
	Clan     string
	Country  int32
	Score    int32
	IsPlayer bool
}

// ServerInfoVersion selects which optional fields a given info reply
// carries, mirroring ServerInfoVersion in the reference.
type ServerInfoVersion int

const (
	V5 ServerInfoVersion = iota
	V6
	V664
	V7
)

// MaxClients returns the player-list cap for this version.
func (v ServerInfoVersion) MaxClients() int {
	if v == V664 {
		return 64
	}
	return 16
}

func (v ServerInfoVersion) HasHostname() bool           { return v >= V7 }
func (v ServerInfoVersion) HasProgression() bool        { return v == V5 }
func (v ServerInfoVersion) HasSkillLevel() bool         { return v >= V7 }
func (v ServerInfoVersion) HasOffset() bool             { return v == V664 }
func (v ServerInfoVersion) HasExtendedPlayerInfo() bool { return v >= V6 }

// ServerInfo is a fully decoded server-info response, version-indexed
// optional fields collapsed to pointers (nil where the version doesn't
// carry them).
type ServerInfo struct {
	InfoVersion ServerInfoVersion
	Token       int32
	Version     string
	Name        string
	Hostname    *string
	Map         string
	GameType    string
	Flags       int32
	Progression *int32
	SkillLevel  *int32
	NumPlayers  int32
	MaxPlayers  int32
	NumClients  int32
	MaxClients  int32
	Clients     []PlayerInfo
}

// SortClients sorts the player list by name, matching
// ServerInfo::sort_clients.
func (s *ServerInfo) SortClients() {
	sort.Slice(s.Clients, func(i, j int) bool { return s.Clients[i].Name < s.Clients[j].Name })
}

type intReader func(*packer.Unpacker) (int32, bool)
type strReader func(*packer.Unpacker) (string, bool)

// infoReadIntV5 parses a 0.5/0.6-vanilla "integer": a decimal ASCII
// string. Those dialects never send packed varints for ServerInfo
// fields, only for the chunked game protocol.
func infoReadIntV5(u *packer.Unpacker) (int32, bool) {
	s, err := u.ReadString()
	if err != nil {
		return 0, false
	}
	var n int32
	if _, err := fmt.Sscanf(string(s), "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

func infoReadIntV7(u *packer.Unpacker) (int32, bool) {
	n, err := u.ReadInt(nil)
	if err != nil {
		return 0, false
	}
	return n, true
}

func infoReadStr(u *packer.Unpacker) (string, bool) {
	s, err := u.ReadString()
	if err != nil {
		return "", false
	}
	return string(s), true
}

// parseServerInfo implements parse_server_info: reads the common
// fields, then version-gated optional fields, then the player list,
// validating Teeworlds' own client-count bounds as it goes.
func parseServerInfo(u *packer.Unpacker, readInt intReader, readStr strReader, version ServerInfoVersion) (*ServerInfo, bool) {
	info := &ServerInfo{InfoVersion: version}

	var ok bool
	if info.Token, ok = readInt(u); !ok {
		return nil, false
	}
	if info.Version, ok = readStr(u); !ok {
		return nil, false
	}
	if info.Name, ok = readStr(u); !ok {
		return nil, false
	}
	if version.HasHostname() {
		host, ok := readStr(u)
		if !ok {
			return nil, false
		}
		info.Hostname = &host
	}
	if info.Map, ok = readStr(u); !ok {
		return nil, false
	}
	if info.GameType, ok = readStr(u); !ok {
		return nil, false
	}
	if info.Flags, ok = readInt(u); !ok {
		return nil, false
	}
	if version.HasProgression() {
		v, ok := readInt(u)
		if !ok {
			return nil, false
		}
		info.Progression = &v
	}
	if version.HasSkillLevel() {
		v, ok := readInt(u)
		if !ok {
			return nil, false
		}
		info.SkillLevel = &v
	}
	if info.NumPlayers, ok = readInt(u); !ok {
		return nil, false
	}
	if info.MaxPlayers, ok = readInt(u); !ok {
		return nil, false
	}
	if version.HasExtendedPlayerInfo() {
		if info.NumClients, ok = readInt(u); !ok {
			return nil, false
		}
		if info.MaxClients, ok = readInt(u); !ok {
			return nil, false
		}
	} else {
		info.NumClients = info.NumPlayers
		info.MaxClients = info.MaxPlayers
	}

	if version.HasOffset() {
		if _, ok := readInt(u); !ok {
			return nil, false
		}
	}

	max := int32(version.MaxClients())
	if info.NumClients < 0 || info.NumClients > max ||
		info.MaxClients < 0 || info.MaxClients > max ||
		info.NumPlayers < 0 || info.NumPlayers > info.NumClients ||
		info.MaxPlayers < 0 || info.MaxPlayers > info.MaxClients {
		return nil, false
	}

	info.Clients = make([]PlayerInfo, info.NumClients)
	for i := range info.Clients {
		c := &info.Clients[i]
		if c.Name, ok = readStr(u); !ok {
			return nil, false
		}
		if version.HasExtendedPlayerInfo() {
			if c.Clan, ok = readStr(u); !ok {
				return nil, false
			}
			if c.Country, ok = readInt(u); !ok {
				return nil, false
			}
		} else {
			c.Country = -1
		}
		if c.Score, ok = readInt(u); !ok {
			return nil, false
		}
		if version.HasExtendedPlayerInfo() {
			v, ok := readInt(u)
			if !ok {
				return nil, false
			}
			c.IsPlayer = v != 0
		} else {
			c.IsPlayer = true
		}
	}

	return info, true
}

// ParseInfo5 parses a request_info_5 response body (0.5 vanilla:
// decimal-ASCII ints, no extended player info).
func ParseInfo5(data []byte) (*ServerInfo, bool) {
	u := packer.NewUnpacker(data)
	info, ok := parseServerInfo(u, infoReadIntV5, infoReadStr, V5)
	if ok {
		info.SortClients()
	}
	return info, ok
}

// ParseInfo6 parses a request_info_6/6_64 response body, trying the
// 0.6-vanilla (decimal-ASCII) encoding first and falling back to the
// 0.7 (packed varint) encoding, matching Info6Response::parse.
func ParseInfo6(data []byte, is664 bool) (*ServerInfo, bool) {
	version := V6
	if is664 {
		version = V664
	}
	if info, ok := parseServerInfo(packer.NewUnpacker(data), infoReadIntV5, infoReadStr, version); ok {
		info.SortClients()
		return info, true
	}
	if info, ok := parseServerInfo(packer.NewUnpacker(data), infoReadIntV7, infoReadStr, V7); ok {
		info.SortClients()
		return info, true
	}
	return nil, false
}

// Addr is a decoded server address: an IP (v4 or v6) plus port.
type Addr struct {
	IP   net.IP
	Port uint16
}

func (a Addr) String() string {
	if a.IP.To4() != nil {
		return fmt.Sprintf("%s:%d", a.IP, a.Port)
	}
	return fmt.Sprintf("[%s]:%d", a.IP, a.Port)
}

// ipv4Mapping is the IPv4-in-IPv6 mapping prefix Addr6 uses to encode
// a v4 address inside a 16-byte field, matching IPV4_MAPPING.
var ipv4Mapping = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

const addr5Size = 6  // 4-byte IPv4 + little-endian uint16 port
const addr6Size = 18 // 16-byte IPv6 (or mapped IPv4) + big-endian uint16 port

func parseList5(data []byte) []Addr {
	n := len(data) / addr5Size
	out := make([]Addr, n)
	for i := 0; i < n; i++ {
		rec := data[i*addr5Size : (i+1)*addr5Size]
		out[i] = Addr{
			IP:   net.IPv4(rec[0], rec[1], rec[2], rec[3]),
			Port: binary.LittleEndian.Uint16(rec[4:6]),
		}
	}
	return out
}

func parseList6(data []byte) []Addr {
	n := len(data) / addr6Size
	out := make([]Addr, n)
	for i := 0; i < n; i++ {
		rec := data[i*addr6Size : (i+1)*addr6Size]
		ip := rec[0:16]
		port := binary.BigEndian.Uint16(rec[16:18])
		if bytes.Equal(ip[:12], ipv4Mapping[:]) {
			out[i] = Addr{IP: net.IPv4(ip[12], ip[13], ip[14], ip[15]), Port: port}
		} else {
			out[i] = Addr{IP: append(net.IP(nil), ip...), Port: port}
		}
	}
	return out
}

func parseCount(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[:2]), true
}

// Response is a tagged union over every server-browse reply kind,
// matching the reference's Response enum.
type Response struct {
	List5   []Addr
	List6   []Addr
	Count   *uint16
	Info5   *ServerInfo
	Info6   *ServerInfo
	Info664 *ServerInfo
}

// ParseResponse dispatches on the packet's 14-byte header tag and
// decodes the matching payload, matching parse_response. Returns
// ok=false for a short packet or an unrecognized tag.
func ParseResponse(data []byte) (Response, bool) {
	if len(data) < HeaderLen {
		return Response{}, false
	}
	var h Header
	copy(h[:], data[:HeaderLen])
	body := data[HeaderLen:]

	switch h {
	case List5:
		return Response{List5: parseList5(body)}, true
	case List6:
		return Response{List6: parseList6(body)}, true
	case Info5:
		info, ok := ParseInfo5(body)
		if !ok {
			return Response{}, false
		}
		return Response{Info5: info}, true
	case Info6:
		info, ok := ParseInfo6(body, false)
		if !ok {
			return Response{}, false
		}
		return Response{Info6: info}, true
	case Info664:
		info, ok := ParseInfo6(body, true)
		if !ok {
			return Response{}, false
		}
		return Response{Info664: info}, true
	case Count:
		n, ok := parseCount(body)
		if !ok {
			return Response{}, false
		}
		return Response{Count: &n}, true
	default:
		return Response{}, false
	}
}
