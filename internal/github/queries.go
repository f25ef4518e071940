package github

import "fmt"

const mergedPullRequestsQuery = `
query MergedPullRequests($owner: String!, $repo: String!, $base: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(
      first: $first
      after: $after
      baseRefName: $base
      states: MERGED
      orderBy: {field: UPDATED_AT, direction: DESC}
    ) {
      nodes {
        id
        number
        title
        bodyText
        mergedAt
        url
      }
      pageInfo {
        endCursor
        hasNextPage
      }
    }
  }
}`

const issueByNumberQuery = `
query IssueByNumber($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    issue(number: $number) {
      id
      number
      title
      url
      state
    }
  }
}`

const issueStateQuery = `
query IssueState($id: ID!) {
  node(id: $id) {
    __typename
    ... on Issue {
      state
    }
  }
}`

const issueStateByNumberQuery = `
query IssueStateByNumber($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    issue(number: $number) {
      state
    }
  }
}`

const issueCommentsQuery = `
query IssueComments($id: ID!, $first: Int!, $after: String) {
  node(id: $id) {
    ... on Issue {
      comments(first: $first, after: $after) {
        nodes {
          id
          body
          url
          createdAt
        }
        pageInfo {
          endCursor
          hasNextPage
        }
      }
    }
  }
}`

const addCommentMutation = `
mutation AddComment($subject: ID!, $body: String!) {
  addComment(input: {subjectId: $subject, body: $body}) {
    commentEdge {
      node {
        id
        url
      }
    }
  }
}`

const issueStatusQuery = `
query IssueStatus($id: ID!, $field: String!, $first: Int!, $after: String) {
  node(id: $id) {
    ... on Issue {
      projectItems(first: $first, after: $after) {
        nodes {
          id
          project {
            id
          }
          fieldValueByName(name: $field) {
            __typename
            ... on ProjectV2ItemFieldSingleSelectValue {
              name
              optionId
            }
          }
        }
        pageInfo {
          endCursor
          hasNextPage
        }
      }
    }
  }
}`

const projectFieldsQuery = `
query ProjectFields($project: ID!, $first: Int!, $after: String) {
  node(id: $project) {
    ... on ProjectV2 {
      fields(first: $first, after: $after) {
        nodes {
          __typename
          ... on ProjectV2FieldCommon {
            id
            name
          }
          ... on ProjectV2SingleSelectField {
            options {
              id
              name
            }
          }
        }
        pageInfo {
          endCursor
          hasNextPage
        }
      }
    }
  }
}`

const projectItemsQuery = `
query ProjectItems($project: ID!, $first: Int!, $after: String) {
  node(id: $project) {
    ... on ProjectV2 {
      items(first: $first, after: $after) {
        nodes {
          id
          content {
            __typename
            ... on Issue {
              id
              number
              state
            }
          }
        }
        pageInfo {
          endCursor
          hasNextPage
        }
      }
    }
  }
}`

const setStatusMutation = `
mutation SetStatus($project: ID!, $item: ID!, $field: ID!, $option: String!) {
  updateProjectV2ItemFieldValue(
    input: {projectId: $project, itemId: $item, fieldId: $field, value: {singleSelectOptionId: $option}}
  ) {
    projectV2Item {
      id
    }
  }
}`

// projectByNumberQuery and projectsQuery select the owner root field at run
// time; ownerType is validated before use so the document is never built from
// arbitrary input.
func projectByNumberQuery(ownerType OwnerType) string {
	return fmt.Sprintf(`
query ProjectByNumber($login: String!, $number: Int!) {
  owner: %s(login: $login) {
    projectV2(number: $number) {
      id
      number
      title
    }
  }
}`, ownerType)
}

func projectsQuery(ownerType OwnerType) string {
	return fmt.Sprintf(`
query Projects($login: String!, $first: Int!, $after: String) {
  owner: %s(login: $login) {
    projectsV2(first: $first, after: $after) {
      nodes {
        id
        number
        title
      }
      pageInfo {
        endCursor
        hasNextPage
      }
    }
  }
}`, ownerType)
}
