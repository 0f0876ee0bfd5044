// Package nfs decodes a subset of the NFSv4 COMPOUND procedure into the
// generic operation tree consumed by the match engine. Operations outside the
// subset fail the decode of the whole compound, which the packet decoder
// treats as "no NFS layer".
package nfs

import (
	"github.com/pkg/errors"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/xdr"
)

// NFSv4 operation numbers
const (
	OpAccess    = 3
	OpClose     = 4
	OpGetattr   = 9
	OpGetfh     = 10
	OpLookup    = 15
	OpOpen      = 18
	OpPutfh     = 22
	OpPutrootfh = 24
	OpRead      = 25
	OpWrite     = 38
	OpSequence  = 53

	OpCBGetattr  = 3
	OpCBRecall   = 4
	OpCBSequence = 11
)

// Limits on counted XDR items, from the protocol or chosen to reject
// garbage that happens to parse.
const (
	maxTag      = 1024
	maxFilehand = 128
	maxComps    = 1024
	maxBitmap   = 10
	maxOps      = 256
)

type opDecoder func(u *xdr.Cursor) (core.Fields, error)

type opInfo struct {
	name string
	args opDecoder
	res  opDecoder
}

// Decoder implements core.CompoundDecoder over a fixed operation table.
type Decoder struct {
	fore map[uint32]opInfo
	back map[uint32]opInfo
}

// NewDecoder returns the decoder for the supported NFSv4.x operations.
func NewDecoder() *Decoder {
	return &Decoder{
		fore: map[uint32]opInfo{
			OpAccess:    {"opaccess", accessArgs, accessRes},
			OpClose:     {"opclose", closeArgs, closeRes},
			OpGetattr:   {"opgetattr", getattrArgs, getattrRes},
			OpGetfh:     {"opgetfh", nil, getfhRes},
			OpLookup:    {"oplookup", lookupArgs, statusOnly},
			OpOpen:      {"opopen", openArgs, openRes},
			OpPutfh:     {"opputfh", putfhArgs, statusOnly},
			OpPutrootfh: {"opputrootfh", nil, statusOnly},
			OpRead:      {"opread", readArgs, readRes},
			OpWrite:     {"opwrite", writeArgs, writeRes},
			OpSequence:  {"opsequence", sequenceArgs, sequenceRes},
		},
		back: map[uint32]opInfo{
			OpCBGetattr:  {"opcbgetattr", cbGetattrArgs, cbGetattrRes},
			OpCBRecall:   {"opcbrecall", cbRecallArgs, statusOnly},
			OpCBSequence: {"opcbsequence", cbSequenceArgs, cbSequenceRes},
		},
	}
}

func (d *Decoder) DecodeArgs(u *xdr.Cursor) (*core.Compound, error) {
	return d.decodeArgs(u, d.fore, false)
}

func (d *Decoder) DecodeRes(u *xdr.Cursor) (*core.Compound, error) {
	return d.decodeRes(u, d.fore)
}

func (d *Decoder) DecodeCallbackArgs(u *xdr.Cursor) (*core.Compound, error) {
	return d.decodeArgs(u, d.back, true)
}

func (d *Decoder) DecodeCallbackRes(u *xdr.Cursor) (*core.Compound, error) {
	return d.decodeRes(u, d.back)
}

func (d *Decoder) decodeArgs(u *xdr.Cursor, table map[uint32]opInfo, callback bool) (*core.Compound, error) {
	nfs := &core.Compound{Call: true}
	tag, err := u.String(maxTag)
	if err != nil {
		return nil, err
	}
	nfs.Tag = tag
	if nfs.Minor, err = u.Uint32(); err != nil {
		return nil, err
	}
	if callback {
		if nfs.CallbackIdent, err = u.Uint32(); err != nil {
			return nil, err
		}
	}
	if nfs.Ops, err = decodeOps(u, table, true); err != nil {
		return nil, err
	}
	return nfs, nil
}

func (d *Decoder) decodeRes(u *xdr.Cursor, table map[uint32]opInfo) (*core.Compound, error) {
	nfs := &core.Compound{}
	status, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	nfs.Status = status
	if nfs.Tag, err = u.String(maxTag); err != nil {
		return nil, err
	}
	if nfs.Ops, err = decodeOps(u, table, false); err != nil {
		return nil, err
	}
	return nfs, nil
}

func decodeOps(u *xdr.Cursor, table map[uint32]opInfo, args bool) ([]core.CompoundOp, error) {
	count, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	if count > maxOps {
		return nil, errors.Errorf("nfs: operation count %d out of range", count)
	}
	ops := make([]core.CompoundOp, 0, count)
	for i := uint32(0); i < count; i++ {
		opnum, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		info, ok := table[opnum]
		if !ok {
			return nil, errors.Errorf("nfs: unsupported operation %d", opnum)
		}
		dec := info.args
		if !args {
			dec = info.res
		}
		var fields core.Fields
		if args && dec == nil {
			// Operation takes no arguments
		} else if !args {
			if fields, err = dec(u); err != nil {
				return nil, errors.Wrapf(err, "nfs: %s result", info.name)
			}
		} else {
			if fields, err = dec(u); err != nil {
				return nil, errors.Wrapf(err, "nfs: %s arguments", info.name)
			}
		}
		ops = append(ops, core.CompoundOp{Op: opnum, Name: info.name, Fields: fields})
	}
	return ops, nil
}

// statusOnly decodes a result carrying nothing but the operation status.
func statusOnly(u *xdr.Cursor) (core.Fields, error) {
	status, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	return core.Fields{{Name: "status", Value: status}}, nil
}

func stateid(u *xdr.Cursor) (core.Fields, error) {
	seqid, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	other, err := u.OpaqueFixed(12)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "seqid", Value: seqid},
		{Name: "other", Value: other},
	}, nil
}

func bitmap(u *xdr.Cursor) ([]uint32, error) {
	return xdr.Array(u, maxBitmap, (*xdr.Cursor).Uint32)
}

func changeInfo(u *xdr.Cursor) (core.Fields, error) {
	atomic, err := u.Bool()
	if err != nil {
		return nil, err
	}
	before, err := u.Uint64()
	if err != nil {
		return nil, err
	}
	after, err := u.Uint64()
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "atomic", Value: atomic},
		{Name: "before", Value: before},
		{Name: "after", Value: after},
	}, nil
}

func fattr(u *xdr.Cursor) (core.Fields, error) {
	mask, err := bitmap(u)
	if err != nil {
		return nil, err
	}
	vals, err := u.Opaque(0)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "attrmask", Value: mask},
		{Name: "attr_vals", Value: vals},
	}, nil
}

func accessArgs(u *xdr.Cursor) (core.Fields, error) {
	access, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	return core.Fields{{Name: "access", Value: access}}, nil
}

func accessRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	supported, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	access, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	return append(fields,
		core.Field{Name: "supported", Value: supported},
		core.Field{Name: "access", Value: access},
	), nil
}

func closeArgs(u *xdr.Cursor) (core.Fields, error) {
	seqid, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "seqid", Value: seqid},
		{Name: "open_stateid", Value: sid},
	}, nil
}

func closeRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	return append(fields, core.Field{Name: "open_stateid", Value: sid}), nil
}

func getattrArgs(u *xdr.Cursor) (core.Fields, error) {
	mask, err := bitmap(u)
	if err != nil {
		return nil, err
	}
	return core.Fields{{Name: "attr_request", Value: mask}}, nil
}

func getattrRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	attrs, err := fattr(u)
	if err != nil {
		return nil, err
	}
	return append(fields, core.Field{Name: "obj_attributes", Value: attrs}), nil
}

func getfhRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	fh, err := u.Opaque(maxFilehand)
	if err != nil {
		return nil, err
	}
	return append(fields, core.Field{Name: "object", Value: fh}), nil
}

func lookupArgs(u *xdr.Cursor) (core.Fields, error) {
	name, err := u.String(maxComps)
	if err != nil {
		return nil, err
	}
	return core.Fields{{Name: "objname", Value: name}}, nil
}

func putfhArgs(u *xdr.Cursor) (core.Fields, error) {
	fh, err := u.Opaque(maxFilehand)
	if err != nil {
		return nil, err
	}
	return core.Fields{{Name: "object", Value: fh}}, nil
}

func readArgs(u *xdr.Cursor) (core.Fields, error) {
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	offset, err := u.Uint64()
	if err != nil {
		return nil, err
	}
	count, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "stateid", Value: sid},
		{Name: "offset", Value: offset},
		{Name: "count", Value: count},
	}, nil
}

func readRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	eof, err := u.Bool()
	if err != nil {
		return nil, err
	}
	data, err := u.Opaque(0)
	if err != nil {
		return nil, err
	}
	return append(fields,
		core.Field{Name: "eof", Value: eof},
		core.Field{Name: "data", Value: data},
	), nil
}

func writeArgs(u *xdr.Cursor) (core.Fields, error) {
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	offset, err := u.Uint64()
	if err != nil {
		return nil, err
	}
	stable, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	data, err := u.Opaque(0)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "stateid", Value: sid},
		{Name: "offset", Value: offset},
		{Name: "stable", Value: stable},
		{Name: "data", Value: data},
	}, nil
}

func writeRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	count, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	committed, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	verf, err := u.OpaqueFixed(8)
	if err != nil {
		return nil, err
	}
	return append(fields,
		core.Field{Name: "count", Value: count},
		core.Field{Name: "committed", Value: committed},
		core.Field{Name: "writeverf", Value: verf},
	), nil
}

func sequenceArgs(u *xdr.Cursor) (core.Fields, error) {
	sessionid, err := u.OpaqueFixed(16)
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "sa_sessionid", Value: sessionid}}
	for _, name := range []string{"sa_sequenceid", "sa_slotid", "sa_highest_slotid"} {
		v, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: name, Value: v})
	}
	cachethis, err := u.Bool()
	if err != nil {
		return nil, err
	}
	return append(fields, core.Field{Name: "sa_cachethis", Value: cachethis}), nil
}

func sequenceRes(u *xdr.Cursor) (core.Fields, error) {
	status, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "sr_status", Value: status}, {Name: "status", Value: status}}
	if status != 0 {
		return fields, nil
	}
	sessionid, err := u.OpaqueFixed(16)
	if err != nil {
		return nil, err
	}
	fields = append(fields, core.Field{Name: "sr_sessionid", Value: sessionid})
	for _, name := range []string{
		"sr_sequenceid", "sr_slotid", "sr_highest_slotid", "sr_target_highest_slotid",
		"sr_status_flags",
	} {
		v, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: name, Value: v})
	}
	return fields, nil
}

// NFSv4 open constants for the OPEN argument unions
const (
	openNocreate = 0
	openCreate   = 1

	createUnchecked   = 0
	createGuarded     = 1
	createExclusive   = 2
	createExclusive41 = 3

	claimNull         = 0
	claimPrevious     = 1
	claimDelegateCur  = 2
	claimDelegatePrev = 3
	claimFH           = 4
	claimDelegCurFH   = 5
	claimDelegPrevFH  = 6

	delegateNone    = 0
	delegateRead    = 1
	delegateWrite   = 2
	delegateNoneExt = 3
)

func openArgs(u *xdr.Cursor) (core.Fields, error) {
	seqid, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	shareAccess, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	shareDeny, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	clientid, err := u.Uint64()
	if err != nil {
		return nil, err
	}
	ownerData, err := u.Opaque(1024)
	if err != nil {
		return nil, err
	}
	owner := core.Fields{
		{Name: "clientid", Value: clientid},
		{Name: "owner", Value: ownerData},
	}
	openhow, err := openHow(u)
	if err != nil {
		return nil, err
	}
	claim, err := openClaim(u)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "seqid", Value: seqid},
		{Name: "share_access", Value: shareAccess},
		{Name: "share_deny", Value: shareDeny},
		{Name: "owner", Value: owner},
		{Name: "openhow", Value: openhow},
		{Name: "claim", Value: claim},
	}, nil
}

func openHow(u *xdr.Cursor) (core.Fields, error) {
	opentype, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "opentype", Value: opentype}}
	if opentype != openCreate {
		return fields, nil
	}
	mode, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields = append(fields, core.Field{Name: "mode", Value: mode})
	switch mode {
	case createUnchecked, createGuarded:
		attrs, err := fattr(u)
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "createattrs", Value: attrs})
	case createExclusive:
		verf, err := u.OpaqueFixed(8)
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "createverf", Value: verf})
	case createExclusive41:
		verf, err := u.OpaqueFixed(8)
		if err != nil {
			return nil, err
		}
		attrs, err := fattr(u)
		if err != nil {
			return nil, err
		}
		fields = append(fields,
			core.Field{Name: "cva_verf", Value: verf},
			core.Field{Name: "cva_attrs", Value: attrs},
		)
	default:
		return nil, errors.Errorf("nfs: createmode %d out of range", mode)
	}
	return fields, nil
}

func openClaim(u *xdr.Cursor) (core.Fields, error) {
	claim, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "claim", Value: claim}}
	switch claim {
	case claimNull, claimDelegatePrev:
		file, err := u.String(maxComps)
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "file", Value: file})
	case claimPrevious:
		dtype, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "delegate_type", Value: dtype})
	case claimDelegateCur:
		sid, err := stateid(u)
		if err != nil {
			return nil, err
		}
		file, err := u.String(maxComps)
		if err != nil {
			return nil, err
		}
		fields = append(fields,
			core.Field{Name: "delegate_stateid", Value: sid},
			core.Field{Name: "file", Value: file},
		)
	case claimDelegCurFH:
		sid, err := stateid(u)
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "oc_delegate_stateid", Value: sid})
	case claimFH, claimDelegPrevFH:
		// Current filehandle, no body
	default:
		return nil, errors.Errorf("nfs: open claim %d out of range", claim)
	}
	return fields, nil
}

func openRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	cinfo, err := changeInfo(u)
	if err != nil {
		return nil, err
	}
	rflags, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	attrset, err := bitmap(u)
	if err != nil {
		return nil, err
	}
	deleg, err := openDelegation(u)
	if err != nil {
		return nil, err
	}
	return append(fields,
		core.Field{Name: "stateid", Value: sid},
		core.Field{Name: "cinfo", Value: cinfo},
		core.Field{Name: "rflags", Value: rflags},
		core.Field{Name: "attrset", Value: attrset},
		core.Field{Name: "delegation", Value: deleg},
	), nil
}

func openDelegation(u *xdr.Cursor) (core.Fields, error) {
	dtype, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "delegation_type", Value: dtype}}
	switch dtype {
	case delegateNone:
	case delegateRead, delegateWrite:
		sid, err := stateid(u)
		if err != nil {
			return nil, err
		}
		recall, err := u.Bool()
		if err != nil {
			return nil, err
		}
		fields = append(fields,
			core.Field{Name: "stateid", Value: sid},
			core.Field{Name: "recall", Value: recall},
		)
		if dtype == delegateWrite {
			limit, err := spaceLimit(u)
			if err != nil {
				return nil, err
			}
			fields = append(fields, core.Field{Name: "space_limit", Value: limit})
		}
		ace, err := nfsace(u)
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "permissions", Value: ace})
	case delegateNoneExt:
		why, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "ond_why", Value: why})
		// why == WND4_CONTENTION (2) or WND4_RESOURCE (3) carries a server
		// push-delegation flag
		if why == 2 || why == 3 {
			will, err := u.Bool()
			if err != nil {
				return nil, err
			}
			fields = append(fields, core.Field{Name: "ond_server_will_push_deleg", Value: will})
		}
	default:
		return nil, errors.Errorf("nfs: delegation type %d out of range", dtype)
	}
	return fields, nil
}

func spaceLimit(u *xdr.Cursor) (core.Fields, error) {
	limitby, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "limitby", Value: limitby}}
	switch limitby {
	case 1: // NFS_LIMIT_SIZE
		size, err := u.Uint64()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: "filesize", Value: size})
	case 2: // NFS_LIMIT_BLOCKS
		num, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		bsize, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields,
			core.Field{Name: "num_blocks", Value: num},
			core.Field{Name: "bytes_per_block", Value: bsize},
		)
	default:
		return nil, errors.Errorf("nfs: space limit %d out of range", limitby)
	}
	return fields, nil
}

func nfsace(u *xdr.Cursor) (core.Fields, error) {
	acetype, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	flag, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	mask, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	who, err := u.String(1024)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "type", Value: acetype},
		{Name: "flag", Value: flag},
		{Name: "access_mask", Value: mask},
		{Name: "who", Value: who},
	}, nil
}

func cbGetattrArgs(u *xdr.Cursor) (core.Fields, error) {
	fh, err := u.Opaque(maxFilehand)
	if err != nil {
		return nil, err
	}
	mask, err := bitmap(u)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "fh", Value: fh},
		{Name: "attr_request", Value: mask},
	}, nil
}

func cbGetattrRes(u *xdr.Cursor) (core.Fields, error) {
	fields, err := statusOnly(u)
	if err != nil || fields.MustUint32("status") != 0 {
		return fields, err
	}
	attrs, err := fattr(u)
	if err != nil {
		return nil, err
	}
	return append(fields, core.Field{Name: "obj_attributes", Value: attrs}), nil
}

func cbRecallArgs(u *xdr.Cursor) (core.Fields, error) {
	sid, err := stateid(u)
	if err != nil {
		return nil, err
	}
	truncate, err := u.Bool()
	if err != nil {
		return nil, err
	}
	fh, err := u.Opaque(maxFilehand)
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "stateid", Value: sid},
		{Name: "truncate", Value: truncate},
		{Name: "fh", Value: fh},
	}, nil
}

func cbSequenceArgs(u *xdr.Cursor) (core.Fields, error) {
	sessionid, err := u.OpaqueFixed(16)
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "csa_sessionid", Value: sessionid}}
	for _, name := range []string{"csa_sequenceid", "csa_slotid", "csa_highest_slotid"} {
		v, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: name, Value: v})
	}
	cachethis, err := u.Bool()
	if err != nil {
		return nil, err
	}
	refs, err := xdr.Array(u, 64, referringCallList)
	if err != nil {
		return nil, err
	}
	return append(fields,
		core.Field{Name: "csa_cachethis", Value: cachethis},
		core.Field{Name: "csa_referring_call_lists", Value: refs},
	), nil
}

func referringCallList(u *xdr.Cursor) (core.Fields, error) {
	sessionid, err := u.OpaqueFixed(16)
	if err != nil {
		return nil, err
	}
	calls, err := xdr.Array(u, 256, func(u *xdr.Cursor) (core.Fields, error) {
		seqid, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		slotid, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		return core.Fields{
			{Name: "rc_sequenceid", Value: seqid},
			{Name: "rc_slotid", Value: slotid},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return core.Fields{
		{Name: "rcl_sessionid", Value: sessionid},
		{Name: "rcl_referring_calls", Value: calls},
	}, nil
}

func cbSequenceRes(u *xdr.Cursor) (core.Fields, error) {
	status, err := u.Uint32()
	if err != nil {
		return nil, err
	}
	fields := core.Fields{{Name: "csr_status", Value: status}, {Name: "status", Value: status}}
	if status != 0 {
		return fields, nil
	}
	sessionid, err := u.OpaqueFixed(16)
	if err != nil {
		return nil, err
	}
	fields = append(fields, core.Field{Name: "csr_sessionid", Value: sessionid})
	for _, name := range []string{
		"csr_sequenceid", "csr_slotid", "csr_highest_slotid", "csr_target_highest_slotid",
	} {
		v, err := u.Uint32()
		if err != nil {
			return nil, err
		}
		fields = append(fields, core.Field{Name: name, Value: v})
	}
	return fields, nil
}
