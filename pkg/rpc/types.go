package rpc

// Info is the /getinfo response.
type Info struct {
	Status                   string `json:"status"`
	Height                   int64  `json:"height"`
	NetworkHeight            int64  `json:"network_height"`
	Difficulty               int64  `json:"difficulty"`
	Hashrate                 int64  `json:"hashrate"`
	Synced                   bool   `json:"synced"`
	TxCount                  int64  `json:"tx_count"`
	TxPoolSize               int64  `json:"tx_pool_size"`
	AltBlocksCount           int64  `json:"alt_blocks_count"`
	OutgoingConnectionsCount int64  `json:"outgoing_connections_count"`
	IncomingConnectionsCount int64  `json:"incoming_connections_count"`
	WhitePeerlistSize        int64  `json:"white_peerlist_size"`
	GreyPeerlistSize         int64  `json:"grey_peerlist_size"`
	LastKnownBlockIndex      int64  `json:"last_known_block_index"`
	StartTime                int64  `json:"start_time"`
	Version                  string `json:"version"`
}

// HeightInfo is the /getheight response.
type HeightInfo struct {
	Status        string `json:"status"`
	Height        int64  `json:"height"`
	NetworkHeight int64  `json:"network_height"`
}

// FeeInfo is the /feeinfo response.
type FeeInfo struct {
	Status  string `json:"status"`
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// PeerList is the /getpeers response.
type PeerList struct {
	Status    string   `json:"status"`
	Peers     []string `json:"peers"`
	GrayPeers []string `json:"gray_peers,omitempty"`
}

// BlockHeader is the block_header member of the header lookups.
type BlockHeader struct {
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	Height       int64  `json:"height"`
	Depth        int64  `json:"depth"`
	Difficulty   int64  `json:"difficulty"`
	Reward       int64  `json:"reward"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        int64  `json:"nonce"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	OrphanStatus bool   `json:"orphan_status"`
}

// Document is a node result relayed without interpretation.
type Document map[string]interface{}
