package handshake

// buildTranscript reproduces spec.md §4.2's transcript byte-for-byte:
// version:u8 || "|pq-drone-gcs:v1|" || session_id || "|" || kem_name
// || "|" || sig_name || "|" || kem_pub || "|" || challenge.
func buildTranscript(version byte, sessionID, challenge [8]byte, kemName, sigName string, kemPub []byte) []byte {
	buf := make([]byte, 0, 64+len(kemName)+len(sigName)+len(kemPub))
	buf = append(buf, version)
	buf = append(buf, "|pq-drone-gcs:v1|"...)
	buf = append(buf, sessionID[:]...)
	buf = append(buf, '|')
	buf = append(buf, kemName...)
	buf = append(buf, '|')
	buf = append(buf, sigName...)
	buf = append(buf, '|')
	buf = append(buf, kemPub...)
	buf = append(buf, '|')
	buf = append(buf, challenge[:]...)
	return buf
}
