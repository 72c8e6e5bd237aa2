package testing

import (
	"sync"

	"github.com/ZaparooProject/go-nisprog/checksum"
)

// Kernel NRCs produced by the virtual kernel
const (
	NRCChunkCRC  = 0x77
	NRCBadBlock  = 0x8C
	NRCDestAlign = 0x89
)

// VirtualBlock is one erasable flash block of a VirtualKernel
type VirtualBlock struct {
	Start uint32
	Len   uint32
}

// VirtualKernel simulates the reflash kernel running in ECU RAM. Request
// serves parsed request frames and Raw the commands whose answers the
// engine reads raw.
type VirtualKernel struct {
	ID      string
	Flash   []byte
	Blocks  []VirtualBlock
	Erases  []int
	Writes     int
	CRCReqs    int
	Unprotects int
	// FailWriteAt makes the write of the chunk at this address fail, when set
	FailWriteAt *uint32
	mu          sync.Mutex
	unprotected bool
	flashMode   bool
}

// NewVirtualKernel creates a kernel serving a copy of flash
func NewVirtualKernel(flash []byte, blocks []VirtualBlock) *VirtualKernel {
	mem := make([]byte, len(flash))
	copy(mem, flash)
	return &VirtualKernel{
		ID:     "npk test kernel",
		Flash:  mem,
		Blocks: blocks,
	}
}

// Snapshot returns a copy of the flash contents
func (k *VirtualKernel) Snapshot() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]byte, len(k.Flash))
	copy(out, k.Flash)
	return out
}

// Request answers a parsed request frame
func (k *VirtualKernel) Request(req []byte) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch req[0] {
	case SIDStartComm:
		// StartComm drops write mode
		k.flashMode = false
		k.unprotected = false
		return BuildStartCommResponse(0xEF, 0x8F)
	case SIDReadECUID:
		return append([]byte{0x5A}, k.ID...)
	case SIDDownload:
		k.flashMode = true
		return BuildPositiveResponse(SIDDownload)
	case SIDKernelStop:
		return BuildPositiveResponse(SIDKernelStop)
	case SIDKernelConfig:
		return []byte{0xFE}
	case SIDKernelRMBA:
		return k.rmba(req)
	case SIDKernelFlash:
		return k.flashCommand(req)
	}
	return BuildNegativeResponse(req[0], 0x11)
}

func (k *VirtualKernel) rmba(req []byte) []byte {
	addr := uint32(req[1])<<16 | uint32(req[2])<<8 | uint32(req[3])
	n := uint32(req[4])
	if addr+n > uint32(len(k.Flash)) {
		return BuildNegativeResponse(SIDKernelRMBA, 0x31)
	}
	return BuildRMBAResponse(addr, k.Flash[addr:addr+n])
}

func (k *VirtualKernel) flashCommand(req []byte) []byte {
	if !k.flashMode {
		return BuildNegativeResponse(SIDKernelFlash, 0x22)
	}
	switch {
	case len(req) == 3 && req[1] == 0x55 && req[2] == 0xAA:
		k.unprotected = true
		k.Unprotects++
		return []byte{0xFC}
	case len(req) == 3 && req[1] == 0x01:
		blk := int(req[2])
		if blk >= len(k.Blocks) {
			return BuildNegativeResponse(SIDKernelFlash, NRCBadBlock)
		}
		k.Erases = append(k.Erases, blk)
		if k.unprotected {
			b := k.Blocks[blk]
			for i := b.Start; i < b.Start+b.Len; i++ {
				k.Flash[i] = 0xFF
			}
		}
		return []byte{0xFC}
	}
	return BuildNegativeResponse(SIDKernelFlash, 0x12)
}

// Raw answers a request whose response the engine reads byte by byte
func (k *VirtualKernel) Raw(req []byte) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch {
	case req[0] == SIDKernelFlash && len(req) > 1 && req[1] == 0x02:
		return k.writeChunk(req)
	case req[0] == SIDKernelConfig && len(req) > 1 && req[1] == 0x03:
		return k.crcCompare(req)
	case req[0] == SIDKernelDump:
		return k.dump(req)
	}
	return ShortFrame(BuildNegativeResponse(req[0], 0x11)...)
}

func (k *VirtualKernel) writeChunk(req []byte) []byte {
	if len(req) != 134 {
		return ShortFrame(Negative, SIDKernelFlash, 0x12)
	}
	if checksum.CksAdd8(req[2:133]) != req[133] {
		return ShortFrame(Negative, SIDKernelFlash, NRCChunkCRC)
	}
	addr := uint32(req[2])<<16 | uint32(req[3])<<8 | uint32(req[4])
	if addr%128 != 0 {
		return ShortFrame(Negative, SIDKernelFlash, NRCDestAlign)
	}
	if k.FailWriteAt != nil && *k.FailWriteAt == addr {
		return ShortFrame(Negative, SIDKernelFlash, 0x8B)
	}
	k.Writes++
	if k.flashMode && k.unprotected {
		copy(k.Flash[addr:addr+128], req[5:133])
	}
	return BuildKernelAck()
}

func (k *VirtualKernel) crcCompare(req []byte) []byte {
	k.CRCReqs++
	chunk := uint32(req[2])<<8 | uint32(req[3])
	for i := range uint32(4) {
		start := (chunk + i) * 256
		want := uint16(req[4+2*i])<<8 | uint16(req[5+2*i])
		piece := make([]byte, 256)
		for j := range piece {
			piece[j] = 0xFF
		}
		if start < uint32(len(k.Flash)) {
			copy(piece, k.Flash[start:])
		}
		if checksum.CRC16(piece) != want {
			return BuildCRCMismatch()
		}
	}
	return BuildCRCMatch()
}

func (k *VirtualKernel) dump(req []byte) []byte {
	numblocks := int(req[2])<<8 | int(req[3])
	first := int(req[4])<<8 | int(req[5])
	var out []byte
	for b := first; b < first+numblocks; b++ {
		data := make([]byte, 32)
		if off := b * 32; off < len(k.Flash) {
			copy(data, k.Flash[off:])
		}
		out = append(out, BuildDumpFrame(data)...)
	}
	return out
}
