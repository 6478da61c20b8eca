package watch

import (
	"fmt"
	"sort"
	"strings"
)

// Kind represents a semantic filesystem event type
type Kind string

// Primary event kinds, one per raw notification
const (
	EventAccess       Kind = "access"
	EventAttrib       Kind = "attrib"
	EventCloseWrite   Kind = "close_write"
	EventCloseNoWrite Kind = "close_nowrite"
	EventCreate       Kind = "create"
	EventDelete       Kind = "delete"
	EventDeleteSelf   Kind = "delete_self"
	EventModify       Kind = "modify"
	EventMoveSelf     Kind = "move_self"
	EventMoveFrom     Kind = "move_from"
	EventMoveTo       Kind = "move_to"
	EventOpen         Kind = "open"
	EventIgnored      Kind = "ignored"
	EventIsDir        Kind = "isdir"
	EventQOverflow    Kind = "q_overflow"
	EventUnmount      Kind = "unmount"
)

// Composite kinds, emitted as fan-out of a primary kind or used to subscribe to a group
const (
	EventClose Kind = "close"
	EventMove  Kind = "move"
	EventAll   Kind = "all"
)

// Primitive-level flags accepted by MaskFor
const (
	FlagOnlyDir    Kind = "onlydir"
	FlagDontFollow Kind = "dont_follow"
	FlagOneShot    Kind = "oneshot"
)

// Mask is a raw notification bitmask. Bit values match the Linux inotify ABI
// so the same constants serve every backend.
type Mask uint32

const (
	InAccess       Mask = 0x00000001
	InModify       Mask = 0x00000002
	InAttrib       Mask = 0x00000004
	InCloseWrite   Mask = 0x00000008
	InCloseNoWrite Mask = 0x00000010
	InOpen         Mask = 0x00000020
	InMovedFrom    Mask = 0x00000040
	InMovedTo      Mask = 0x00000080
	InCreate       Mask = 0x00000100
	InDelete       Mask = 0x00000200
	InDeleteSelf   Mask = 0x00000400
	InMoveSelf     Mask = 0x00000800
	InUnmount      Mask = 0x00002000
	InQOverflow    Mask = 0x00004000
	InIgnored      Mask = 0x00008000
	InOnlyDir      Mask = 0x01000000
	InDontFollow   Mask = 0x02000000
	InIsDir        Mask = 0x40000000
	InOneShot      Mask = 0x80000000

	InClose     = InCloseWrite | InCloseNoWrite
	InMove      = InMovedFrom | InMovedTo
	InAllEvents = InAccess | InModify | InAttrib | InClose | InOpen | InMove |
		InCreate | InDelete | InDeleteSelf | InMoveSelf
)

var kindMasks = map[Kind]Mask{
	EventAccess:       InAccess,
	EventAttrib:       InAttrib,
	EventCloseWrite:   InCloseWrite,
	EventCloseNoWrite: InCloseNoWrite,
	EventCreate:       InCreate,
	EventDelete:       InDelete,
	EventDeleteSelf:   InDeleteSelf,
	EventModify:       InModify,
	EventMoveSelf:     InMoveSelf,
	EventMoveFrom:     InMovedFrom,
	EventMoveTo:       InMovedTo,
	EventOpen:         InOpen,
	EventAll:          InAllEvents,
	EventClose:        InClose,
	EventMove:         InMove,
	FlagOnlyDir:       InOnlyDir,
	FlagDontFollow:    InDontFollow,
	FlagOneShot:       InOneShot,
}

// classifyOrder is the precedence used by Classify: the first matching bit wins.
var classifyOrder = []struct {
	bit  Mask
	kind Kind
}{
	{InAccess, EventAccess},
	{InAttrib, EventAttrib},
	{InCloseWrite, EventCloseWrite},
	{InCloseNoWrite, EventCloseNoWrite},
	{InCreate, EventCreate},
	{InDelete, EventDelete},
	{InDeleteSelf, EventDeleteSelf},
	{InModify, EventModify},
	{InMoveSelf, EventMoveSelf},
	{InMovedFrom, EventMoveFrom},
	{InMovedTo, EventMoveTo},
	{InOpen, EventOpen},
	{InIgnored, EventIgnored},
	{InIsDir, EventIsDir},
	{InQOverflow, EventQOverflow},
	{InUnmount, EventUnmount},
}

// Classify maps a raw mask to exactly one primary kind.
func Classify(mask Mask) (Kind, error) {
	for _, c := range classifyOrder {
		if mask&c.bit != 0 {
			return c.kind, nil
		}
	}
	return "", fmt.Errorf("%w: mask 0x%08x", ErrUnknownEvent, uint32(mask))
}

// ParseKind converts a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := kindMasks[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return k, nil
}

// MaskFor ORs together the masks of the given kinds.
func MaskFor(kinds ...Kind) (Mask, error) {
	var mask Mask
	for _, k := range kinds {
		m, ok := kindMasks[k]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, string(k))
		}
		mask |= m
	}
	return mask, nil
}

// AddFlags sets the primitive-level flags on mask.
func AddFlags(mask Mask, onlyDir, dontFollow, oneShot bool) Mask {
	if onlyDir {
		mask |= InOnlyDir
	}
	if dontFollow {
		mask |= InDontFollow
	}
	if oneShot {
		mask |= InOneShot
	}
	return mask
}

// FanOut returns the secondary kinds emitted alongside k.
func (k Kind) FanOut() []Kind {
	switch k {
	case EventCloseWrite, EventCloseNoWrite:
		return []Kind{EventClose}
	case EventMoveTo:
		return []Kind{EventMove}
	}
	return nil
}

// Members returns the kinds a subscription to k delivers.
func (k Kind) Members() []Kind {
	switch k {
	case EventClose:
		return []Kind{EventClose, EventCloseWrite, EventCloseNoWrite}
	case EventMove:
		return []Kind{EventMove, EventMoveFrom, EventMoveTo}
	case EventAll:
		all := make([]Kind, 0, len(classifyOrder)+2)
		for _, c := range classifyOrder {
			all = append(all, c.kind)
		}
		return append(all, EventClose, EventMove)
	}
	return []Kind{k}
}

// Kinds lists every named kind and flag with its mask, sorted by name.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindMasks))
	for k := range kindMasks {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
