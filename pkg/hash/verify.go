package hash

// IsHash checks that every entry stored in index currently lives in the
// bucket its key actually routes to, and that the directory itself
// satisfies the aliasing invariant. It is the non-fatal counterpart to
// HashDirectory.VerifyIntegrity, meant for tests/tooling that want a bool
// rather than a panic.
func IsHash(index *HashIndex) (bool, error) {
	table := index.GetTable()
	table.RLock()
	defer table.RUnlock()

	dir, err := table.fetchDirectory()
	if err != nil {
		return false, err
	}
	defer table.pager.PutPage(dir.page)

	for i := int64(0); i < dir.Size(); i++ {
		ld := dir.LocalDepth(i)
		if ld < 0 || ld > dir.GlobalDepth() {
			return false, nil
		}
		stride := int64(1) << ld
		for j := i % stride; j < dir.Size(); j += stride {
			if dir.BucketPageID(j) != dir.BucketPageID(i) || dir.LocalDepth(j) != ld {
				return false, nil
			}
		}
	}

	for i := int64(0); i < dir.Size(); i++ {
		pn := dir.BucketPageID(i)
		bucket, err := table.getBucket(pn)
		if err != nil {
			return false, err
		}
		bucket.RLock()
		entries := bucket.ArrayCopy()
		bucket.RUnlock()
		table.pager.PutPage(bucket.page)

		for _, e := range entries {
			if (int64(table.hashFn(e.Key)) & dir.LocalDepthMask(i)) != (i & dir.LocalDepthMask(i)) {
				return false, nil
			}
		}
	}
	return true, nil
}
