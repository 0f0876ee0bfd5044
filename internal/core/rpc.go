package core

import "fmt"

// RPC message types.
const (
	RPCCall  = 0
	RPCReply = 1
)

// Reply status values.
const (
	MsgAccepted = 0
	MsgDenied   = 1
)

// Accepted status values.
const (
	AcceptSuccess      = 0
	AcceptProgUnavail  = 1
	AcceptProgMismatch = 2
	AcceptProcUnavail  = 3
	AcceptGarbageArgs  = 4
	AcceptSystemErr    = 5
)

// Rejected status values.
const (
	RejectRPCMismatch = 0
	RejectAuthError   = 1
)

// MaxAuthStat is the largest defined auth_stat value (RFC 5531 plus the
// RPCSEC_GSS additions).
const MaxAuthStat = 14

// Authentication flavors.
const (
	AuthNone  = 0
	AuthSys   = 1
	RPCSecGSS = 6
)

// RPCSEC_GSS control procedures.
const (
	GSSProcData         = 0
	GSSProcInit         = 1
	GSSProcContinueInit = 2
	GSSProcDestroy      = 3
)

// RPCSEC_GSS services.
const (
	GSSSvcNone      = 1
	GSSSvcIntegrity = 2
	GSSSvcPrivacy   = 3
)

// NFS program numbers. Anything in the transient program range is treated as
// an NFS callback.
const (
	NFSProgram       = 100003
	TransientProgLow = 0x40000000
	TransientProgHi  = 0x60000000
)

// RecordMark is the RPC-over-TCP record marking header: top bit flags the
// last fragment, the remaining 31 bits give the fragment byte count.
type RecordMark struct {
	Size uint32
	Last bool
}

// Prog is the low/high version range reported on program or RPC version
// mismatches.
type Prog struct {
	Low  uint32
	High uint32
}

func (p Prog) Field(name string) (interface{}, bool) {
	switch name {
	case "low":
		return p.Low, true
	case "high":
		return p.High, true
	}
	return nil, false
}

// SysCred is the AUTH_SYS credential body.
type SysCred struct {
	Stamp   uint32
	Machine string
	UID     uint32
	GID     uint32
	GIDs    []uint32
}

// GSSCred is the RPCSEC_GSS credential body.
type GSSCred struct {
	Version uint32
	Proc    uint32
	SeqNum  uint32
	Service uint32
	Context []byte
}

// GSSVerf is the RPCSEC_GSS verifier body: only a token on the wire. On
// correlated replies the proc/service/version of the call credential are
// copied in since the reply itself does not repeat them.
type GSSVerf struct {
	Token   []byte
	Proc    uint32
	Service uint32
	Version uint32
	// Enriched is set once the call credential metadata has been copied in.
	Enriched bool
}

// Credential is the credential/verifier tagged union keyed by flavor.
// Exactly one of the variant pointers is set for SYS and GSS flavors;
// AUTH_NONE has no body.
type Credential struct {
	Flavor uint32
	Size   uint32
	Sys    *SysCred
	GSS    *GSSCred
	Verf   *GSSVerf
}

func (c *Credential) Field(name string) (interface{}, bool) {
	switch name {
	case "flavor":
		return c.Flavor, true
	case "size":
		return c.Size, true
	}
	if c.Sys != nil {
		switch name {
		case "stamp":
			return c.Sys.Stamp, true
		case "machine":
			return c.Sys.Machine, true
		case "uid":
			return c.Sys.UID, true
		case "gid":
			return c.Sys.GID, true
		case "gids":
			return c.Sys.GIDs, true
		}
	}
	if c.GSS != nil {
		switch name {
		case "gss_version":
			return c.GSS.Version, true
		case "gss_proc":
			return c.GSS.Proc, true
		case "gss_seq_num":
			return c.GSS.SeqNum, true
		case "gss_service":
			return c.GSS.Service, true
		case "gss_context":
			return c.GSS.Context, true
		}
	}
	if c.Verf != nil {
		switch name {
		case "gss_token":
			return c.Verf.Token, true
		case "gss_proc":
			return c.Verf.Proc, c.Verf.Enriched
		case "gss_service":
			return c.Verf.Service, c.Verf.Enriched
		case "gss_version":
			return c.Verf.Version, c.Verf.Enriched
		}
	}
	return nil, false
}

// RPC is the decoded RPC header. Call-only and reply-only fields use
// pointers so absence is explicit; replies get program/version/procedure
// filled in from the pending-call map when the matching call was seen.
type RPC struct {
	Fragment *RecordMark // TCP only
	XID      uint32
	Type     uint32

	// Call fields; also recovered on correlated replies.
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	HasProg    bool

	Credential *Credential
	Verifier   *Credential

	// Reply fields
	ReplyStatus    *uint32
	AcceptedStatus *uint32
	ProgMismatch   *Prog
	RejectedStatus *uint32
	RPCMismatch    *Prog
	AuthStatus     *uint32

	// Frame index of the matching call for correlated replies, -1 otherwise.
	CallIndex int
}

func (r *RPC) Field(name string) (interface{}, bool) {
	switch name {
	case "xid":
		return r.XID, true
	case "type":
		return r.Type, true
	case "rpc_version":
		return r.RPCVersion, r.Type == RPCCall
	case "program":
		return r.Program, r.HasProg
	case "version":
		return r.Version, r.HasProg
	case "procedure":
		return r.Procedure, r.HasProg
	case "credential":
		return r.Credential, r.Credential != nil
	case "verifier":
		return r.Verifier, r.Verifier != nil
	case "reply_status":
		if r.ReplyStatus != nil {
			return *r.ReplyStatus, true
		}
	case "accepted_status":
		if r.AcceptedStatus != nil {
			return *r.AcceptedStatus, true
		}
	case "prog_mismatch":
		if r.ProgMismatch != nil {
			return *r.ProgMismatch, true
		}
	case "rejected_status":
		if r.RejectedStatus != nil {
			return *r.RejectedStatus, true
		}
	case "rpc_mismatch":
		if r.RPCMismatch != nil {
			return *r.RPCMismatch, true
		}
	case "auth_status":
		if r.AuthStatus != nil {
			return *r.AuthStatus, true
		}
	case "call_index":
		if r.CallIndex >= 0 {
			return r.CallIndex, true
		}
	}
	return nil, false
}

func (r *RPC) String() string {
	rtype := "call "
	if r.Type == RPCReply {
		rtype = "reply"
	}
	prog := ""
	if r.HasProg {
		prog = fmt.Sprintf(" program: %d, version: %d, procedure: %d,", r.Program, r.Version, r.Procedure)
	}
	return fmt.Sprintf("RPC %s%s xid: 0x%08x", rtype, prog, r.XID)
}

// GSSData is the data preceding the RPC payload when the flavor is
// RPCSEC_GSS: length/seq_num for the integrity service, token and context
// negotiation fields for RPCSEC_GSS_INIT.
type GSSData struct {
	Proc      uint32
	Length    uint32
	SeqNum    uint32
	Token     []byte
	Context   []byte
	Major     uint32
	Minor     uint32
	SeqWindow uint32
}

// GSSCheck is the integrity checksum token following the RPC payload.
type GSSCheck struct {
	Token []byte
}
