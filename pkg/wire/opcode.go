package wire

// Opcode selects the RPC carried by a frame (spec.md §6.2).
type Opcode uint32

const (
	OpBlockRead Opcode = iota + 1
	OpBlockWrite
	OpBlockDelete
	OpBlockListLocal

	OpManagerAllocate
	OpManagerResolve
	OpManagerAssign
	OpManagerHeartbeat
	OpManagerRelease
	OpManagerListAssigned
	OpManagerListLiveBlockServers

	OpRootBegin
	OpRootCommit
	OpRootCurrent
	OpRootRollback
	OpRootHistory

	// OpError carries an ErrorResponse body; any handler may reply with it
	// instead of the request's normal response opcode.
	OpError
)

func (o Opcode) String() string {
	switch o {
	case OpBlockRead:
		return "BS_READ"
	case OpBlockWrite:
		return "BS_WRITE"
	case OpBlockDelete:
		return "BS_DELETE"
	case OpBlockListLocal:
		return "BS_LIST_LOCAL"
	case OpManagerAllocate:
		return "MS_ALLOCATE"
	case OpManagerResolve:
		return "MS_RESOLVE"
	case OpManagerAssign:
		return "MS_ASSIGN"
	case OpManagerHeartbeat:
		return "MS_HEARTBEAT"
	case OpManagerRelease:
		return "MS_RELEASE"
	case OpManagerListAssigned:
		return "MS_LIST_ASSIGNED"
	case OpManagerListLiveBlockServers:
		return "MS_LIST_LIVE_BLOCK_SERVERS"
	case OpRootBegin:
		return "RS_BEGIN"
	case OpRootCommit:
		return "RS_COMMIT"
	case OpRootCurrent:
		return "RS_ROOT"
	case OpRootRollback:
		return "RS_ROLLBACK"
	case OpRootHistory:
		return "RS_HISTORY"
	case OpError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
