package catalog

import "facestore/internal/facestore/cache"

// The eviction table. Each write evicts every cached query whose result it can
// change, before the write reaches the store.

func savePersonEvictions(personID string) []cache.Key {
	return []cache.Key{
		cache.PersonKey(personID),
		cache.PersonIDListKey(),
	}
}

func saveFaceEvictions(personID, faceID string) []cache.Key {
	return []cache.Key{
		cache.FaceIDListKey(personID),
		cache.FaceKey(personID, faceID),
	}
}

// deletePersonEvictions also drops the face entries of every face the person
// owned, since the store removes them with the person.
func deletePersonEvictions(personID string, faceIDs []string) []cache.Key {
	keys := []cache.Key{
		cache.PersonKey(personID),
		cache.FaceIDListKey(personID),
		cache.PersonIDListKey(),
	}
	for _, faceID := range faceIDs {
		keys = append(keys, cache.FaceKey(personID, faceID))
	}
	return keys
}

func deleteFaceEvictions(personID, faceID string) []cache.Key {
	return []cache.Key{
		cache.FaceIDListKey(personID),
		cache.FaceKey(personID, faceID),
	}
}

// saveFaceDataEvictions is the union of the person row and one face row per
// face, without duplicates.
func saveFaceDataEvictions(personID string, faceIDs []string) []cache.Key {
	seen := make(map[cache.Key]struct{})
	var keys []cache.Key
	add := func(ks []cache.Key) {
		for _, k := range ks {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	add(savePersonEvictions(personID))
	for _, faceID := range faceIDs {
		add(saveFaceEvictions(personID, faceID))
	}
	return keys
}
