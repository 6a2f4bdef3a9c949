package uuidcrc

// crcTable is the 16-entry nibble lookup table used by the CRC32
// variant inherited from the on-disk label checksum. It trades a full
// 256-entry table for a smaller one processed two nibbles per byte.
var crcTable = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// InitialCRC is the seed value every on-disk checksum starts from.
const InitialCRC uint32 = 0xffffffff

// CRC32 computes the checksum of buf starting from initial, processing
// each byte as two nibbles. Passing the previous call's return value as
// initial allows checksumming a buffer in pieces.
func CRC32(initial uint32, buf []byte) uint32 {
	crc := initial
	for _, b := range buf {
		crc ^= uint32(b)
		crc = (crc >> 4) ^ crcTable[crc&0xf]
		crc = (crc >> 4) ^ crcTable[crc&0xf]
	}
	return crc
}
