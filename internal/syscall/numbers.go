package syscall

// Syscall numbers are part of the ABI (spec §4.8) and must never be
// reassigned.
const (
	SysPrint   = 0
	SysTime    = 1
	SysExit    = 2
	SysArgCount = 10
	SysArgGet  = 11
	SysCwdGet  = 12
	SysCwdSet  = 13

	SysFsExists  = 20
	SysFsRead    = 21
	SysFsWrite   = 22
	SysFsList    = 23
	SysFsStat    = 24
	SysFsRemove  = 25
	SysFsMkdir   = 26
	SysFsIsDir   = 27
	SysFsListDir = 28

	SysNetAvailable = 30
	SysDNSResolve   = 31
	SysSendPing     = 32
	SysTCPConnect   = 33
	SysTCPSend      = 34
	SysTCPRecv      = 35
	SysTCPClose     = 36
	SysTCPStatus    = 37
	SysHTTPGet      = 38

	SysConsoleAvailable = 40
	SysConsoleRead      = 41

	SysPSList  = 50
	SysKill    = 51
	SysCPUInfo = 52

	SysShutdown     = 60
	SysShouldCancel = 61
	SysRandom       = 62
	SysEnvGet       = 63
	SysKlogGet      = 64

	SysServiceList     = 70
	SysServiceStart    = 71
	SysServiceStop     = 72
	SysServiceRunning  = 73

	SysNetInfo   = 80
	SysHeapStats = 81
	SysSleep     = 82
)

// ENOSYS, etc. (spec §4.8): negative return values signal errors.
const (
	ErrGeneric  = -1
	ErrReserved = -2
)
