package comm

import "github.com/coatyio/coaty-go/internal/coatyobj"

// validateResolveConsistency is P6 for Discover/Resolve: every object
// the Resolve carries must satisfy the Discover request's own
// constraints.
func validateResolveConsistency(req coatyobj.DiscoverData, resp *coatyobj.ResolveData) error {
	check := func(obj coatyobj.CoatyObject) error {
		if !discoverMatchesObject(req, obj) {
			return &coatyobj.ValidationError{Field: "resolve", Msg: "response parameter mismatch: resolved object does not satisfy the Discover request"}
		}
		return nil
	}
	if resp.Object != nil {
		if err := check(*resp.Object); err != nil {
			return err
		}
	}
	for _, o := range resp.RelatedObjects {
		if err := check(o); err != nil {
			return err
		}
	}
	return nil
}

// validateRetrieveConsistency is P6 for Query/Retrieve: every returned
// object must belong to one of the requested object/core types.
func validateRetrieveConsistency(req coatyobj.QueryData, resp *coatyobj.RetrieveData) error {
	for _, o := range resp.Objects {
		if !matchesOptionalTypesForQuery(req, o) {
			return &coatyobj.ValidationError{Field: "retrieve", Msg: "response parameter mismatch: retrieved object does not match the Query's objectTypes/coreTypes"}
		}
	}
	return nil
}

func matchesOptionalTypesForQuery(req coatyobj.QueryData, obj coatyobj.CoatyObject) bool {
	if len(req.CoreTypes) > 0 {
		return containsString(req.CoreTypes, obj.CoreType)
	}
	if len(req.ObjectTypes) > 0 {
		return containsString(req.ObjectTypes, obj.ObjectType)
	}
	return true
}

// validateCompleteConsistency is P6 for Update/Complete: the completed
// object's id must equal the updated object's id.
func validateCompleteConsistency(reqObjectId string, resp *coatyobj.CompleteData) error {
	if resp.Object.ObjectId != reqObjectId {
		return &coatyobj.ValidationError{Field: "complete", Msg: "response parameter mismatch: Complete.object.objectId does not equal Update.object.objectId"}
	}
	return nil
}
