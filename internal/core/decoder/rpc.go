package decoder

import (
	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/xdr"
)

// decodeRPC decodes the RPC record-marking header (TCP only) and the RPC
// message header including the credential/verifier union. Returns nil when
// the bytes at the cursor are not a valid RPC header; the caller restores
// the cursor. With state set, calls are recorded in the pending-call map and
// replies recover their call metadata from it.
func decodeRPC(ctx *Context, proto int, state bool) *core.RPC {
	u := ctx.Cursor
	rpc := &core.RPC{CallIndex: -1}

	if proto == protocolTCP {
		// Record marking: 1 bit last-fragment flag, 31 bits fragment length.
		// A record may span multiple fragments; accumulate them.
		var saved []byte
		for {
			psize, err := u.Uint32()
			if err != nil {
				return nil
			}
			fragSize := int(psize & 0x7FFFFFFF)
			last := psize>>31 != 0
			size := fragSize + len(saved)
			if size == 0 {
				return nil
			}
			if !last && fragSize < u.Len() {
				frag, err := u.Read(fragSize)
				if err != nil {
					return nil
				}
				saved = append(saved, frag...)
				continue
			}
			if len(saved) > 0 {
				u.Insert(saved)
			}
			rpc.Fragment = &core.RecordMark{Size: uint32(size), Last: last}
			break
		}
	} else if proto != protocolUDP {
		return nil
	}

	var err error
	if rpc.XID, err = u.Uint32(); err != nil {
		return nil
	}
	if rpc.Type, err = u.Uint32(); err != nil {
		return nil
	}

	switch rpc.Type {
	case core.RPCCall:
		if rpc.RPCVersion, err = u.Uint32(); err != nil {
			return nil
		}
		if rpc.Program, err = u.Uint32(); err != nil {
			return nil
		}
		if rpc.Version, err = u.Uint32(); err != nil {
			return nil
		}
		if rpc.Procedure, err = u.Uint32(); err != nil {
			return nil
		}
		rpc.HasProg = true
		if rpc.Credential = rpcCredential(u, false); rpc.Credential == nil {
			return nil
		}
		rpc.Verifier = rpcCredential(u, true)
		if rpc.RPCVersion != 2 {
			return nil
		}
		if (rpc.Credential.Flavor == core.AuthNone || rpc.Credential.Flavor == core.AuthSys) &&
			rpc.Verifier == nil {
			return nil
		}

	case core.RPCReply:
		status, err := u.Uint32()
		if err != nil {
			return nil
		}
		rpc.ReplyStatus = &status
		switch status {
		case core.MsgAccepted:
			if rpc.Verifier = rpcCredential(u, true); rpc.Verifier == nil {
				return nil
			}
			accepted, err := u.Uint32()
			if err != nil {
				return nil
			}
			rpc.AcceptedStatus = &accepted
			if accepted == core.AcceptProgMismatch {
				if rpc.ProgMismatch, err = decodeProg(u); err != nil {
					return nil
				}
			} else if accepted > core.AcceptSystemErr {
				return nil
			}
		case core.MsgDenied:
			rejected, err := u.Uint32()
			if err != nil {
				return nil
			}
			rpc.RejectedStatus = &rejected
			switch rejected {
			case core.RejectRPCMismatch:
				if rpc.RPCMismatch, err = decodeProg(u); err != nil {
					return nil
				}
			case core.RejectAuthError:
				auth, err := u.Uint32()
				if err != nil {
					return nil
				}
				rpc.AuthStatus = &auth
				if auth > core.MaxAuthStat {
					return nil
				}
			default:
				return nil
			}
		default:
			return nil
		}

	default:
		return nil
	}

	if !state {
		return rpc
	}

	switch rpc.Type {
	case core.RPCCall:
		info := CallInfo{
			Index:     ctx.Pkt.Record.Index,
			Program:   rpc.Program,
			Version:   rpc.Version,
			Procedure: rpc.Procedure,
		}
		if rpc.Credential.GSS != nil {
			info.GSS = rpc.Credential.GSS
		}
		ctx.Calls.Put(rpc.XID, info)
	case core.RPCReply:
		if info, ok := ctx.Calls.Get(rpc.XID); ok {
			rpc.Program = info.Program
			rpc.Version = info.Version
			rpc.Procedure = info.Procedure
			rpc.HasProg = true
			rpc.CallIndex = info.Index
			if info.GSS != nil && rpc.Verifier != nil && rpc.Verifier.Verf != nil {
				// The reply verifier does not repeat the GSS metadata, copy
				// it over from the call credential
				rpc.Verifier.Verf.Proc = info.GSS.Proc
				rpc.Verifier.Verf.Service = info.GSS.Service
				rpc.Verifier.Verf.Version = info.GSS.Version
				rpc.Verifier.Verf.Enriched = true
			}
		}
	}
	return rpc
}

func decodeProg(u *xdr.Cursor) (*core.Prog, error) {
	low, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	high, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	return &core.Prog{Low: low, High: high}, nil
}

// rpcCredential decodes the credential/verifier tagged union. The GSS shape
// differs between the two: a credential carries the full context header, a
// verifier only a token.
func rpcCredential(u *xdr.Cursor, verifier bool) *core.Credential {
	flavor, err := u.Uint32()
	if err != nil {
		return nil
	}
	switch flavor {
	case core.AuthNone:
		size, err := u.Uint32()
		if err != nil {
			return nil
		}
		return &core.Credential{Flavor: flavor, Size: size}

	case core.AuthSys:
		cred := &core.Credential{Flavor: flavor, Sys: &core.SysCred{}}
		if cred.Size, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.Sys.Stamp, err = u.Uint32(); err != nil {
			return nil
		}
		machine, err := u.Opaque(255)
		if err != nil {
			return nil
		}
		cred.Sys.Machine = string(machine)
		if cred.Sys.UID, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.Sys.GID, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.Sys.GIDs, err = xdr.Array(u, 16, (*xdr.Cursor).Uint32); err != nil {
			return nil
		}
		return cred

	case core.RPCSecGSS:
		if verifier {
			token, err := u.Opaque(0)
			if err != nil {
				return nil
			}
			return &core.Credential{
				Flavor: flavor,
				Size:   uint32(len(token)),
				Verf:   &core.GSSVerf{Token: token},
			}
		}
		cred := &core.Credential{Flavor: flavor, GSS: &core.GSSCred{}}
		if cred.Size, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.GSS.Version, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.GSS.Proc, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.GSS.SeqNum, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.GSS.Service, err = u.Uint32(); err != nil {
			return nil
		}
		if cred.GSS.Context, err = u.Opaque(0); err != nil {
			return nil
		}
		return cred
	}
	return nil
}

// decodeNFS dispatches a fully assembled RPC payload into the NFS compound
// decoder. Program 100003 is always NFS; anything in the transient program
// range is treated as an NFS callback. Everything else, and any decode
// failure from the compound decoder, leaves the packet without an NFS layer.
func decodeNFS(ctx *Context, rpc *core.RPC) *core.Compound {
	u := ctx.Cursor
	decodeGSSData(ctx, rpc)

	if ctx.NFS == nil || !rpc.HasProg {
		return nil
	}
	if u.Len() == 0 || rpc.Procedure == 0 || rpc.Version == 0 {
		return nil
	}

	var callback bool
	switch {
	case rpc.Program == core.NFSProgram:
		callback = false
	case rpc.Program >= core.TransientProgLow && rpc.Program < core.TransientProgHi:
		callback = true
	default:
		return nil
	}

	if rpc.Procedure != 1 {
		return nil
	}
	if (!callback && rpc.Version != 4) || (callback && rpc.Version != 1) {
		return nil
	}

	sid := u.Save()
	var nfs *core.Compound
	var err error
	switch {
	case callback && rpc.Type == core.RPCCall:
		nfs, err = ctx.NFS.DecodeCallbackArgs(u)
	case callback:
		nfs, err = ctx.NFS.DecodeCallbackRes(u)
	case rpc.Type == core.RPCCall:
		nfs, err = ctx.NFS.DecodeArgs(u)
	default:
		nfs, err = ctx.NFS.DecodeRes(u)
	}
	if err != nil || nfs == nil {
		u.Restore(sid)
		return nil
	}
	decodeGSSChecksum(ctx, rpc)
	return nfs
}

// gssInfo returns the GSS proc/service governing this message, from the call
// credential or the enriched reply verifier.
func gssInfo(rpc *core.RPC) (proc, service uint32, ok bool) {
	if rpc.Type == core.RPCCall {
		if rpc.Credential != nil && rpc.Credential.GSS != nil {
			return rpc.Credential.GSS.Proc, rpc.Credential.GSS.Service, true
		}
		return 0, 0, false
	}
	if rpc.Verifier != nil && rpc.Verifier.Verf != nil && rpc.Verifier.Verf.Enriched {
		return rpc.Verifier.Verf.Proc, rpc.Verifier.Verf.Service, true
	}
	return 0, 0, false
}

// decodeGSSData decodes the data preceding the RPC payload when the flavor
// is RPCSEC_GSS. Failures are swallowed.
func decodeGSSData(ctx *Context, rpc *core.RPC) {
	u := ctx.Cursor
	if u.Len() < 4 {
		return
	}
	proc, service, ok := gssInfo(rpc)
	if !ok {
		return
	}
	sid := u.Save()
	gss := &core.GSSData{Proc: proc}
	var err error
	switch proc {
	case core.GSSProcData:
		if service != core.GSSSvcIntegrity {
			return
		}
		if gss.Length, err = u.Uint32(); err != nil {
			u.Restore(sid)
			return
		}
		if gss.SeqNum, err = u.Uint32(); err != nil {
			u.Restore(sid)
			return
		}
	case core.GSSProcInit:
		if rpc.Type == core.RPCCall {
			if gss.Token, err = u.Opaque(0); err != nil {
				u.Restore(sid)
				return
			}
		} else {
			if gss.Context, err = u.Opaque(0); err != nil {
				u.Restore(sid)
				return
			}
			if gss.Major, err = u.Uint32(); err != nil {
				u.Restore(sid)
				return
			}
			if gss.Minor, err = u.Uint32(); err != nil {
				u.Restore(sid)
				return
			}
			if gss.SeqWindow, err = u.Uint32(); err != nil {
				u.Restore(sid)
				return
			}
			if gss.Token, err = u.Opaque(0); err != nil {
				u.Restore(sid)
				return
			}
		}
	default:
		return
	}
	ctx.Pkt.GSSData = gss
}

// decodeGSSChecksum decodes the integrity checksum following the RPC
// payload. Failures are swallowed.
func decodeGSSChecksum(ctx *Context, rpc *core.RPC) {
	u := ctx.Cursor
	if u.Len() < 4 {
		return
	}
	proc, service, ok := gssInfo(rpc)
	if !ok || proc != core.GSSProcData || service != core.GSSSvcIntegrity {
		return
	}
	sid := u.Save()
	token, err := u.Opaque(0)
	if err != nil {
		u.Restore(sid)
		return
	}
	ctx.Pkt.GSSCheck = &core.GSSCheck{Token: token}
}
